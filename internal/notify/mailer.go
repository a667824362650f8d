package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Mailer отправляет письма через REST-API почтового провайдера.
// Пустой endpoint переводит его в режим no-op: уведомление логируется
// и считается отправленным.
type Mailer struct {
	endpoint  string
	apiKey    string
	fromEmail string
	fromName  string
	client    *http.Client
}

func NewMailer(endpoint, apiKey, fromEmail, fromName string) *Mailer {
	return &Mailer{
		endpoint:  endpoint,
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailRequest struct {
	From    mailAddress   `json:"from"`
	To      []mailAddress `json:"to"`
	Subject string        `json:"subject"`
	Text    string        `json:"text"`
}

// SendShareNotification отправляет получателю письмо со ссылкой на share.
func (m *Mailer) SendShareNotification(ctx context.Context, recipientEmail, shareLink string) error {
	if m.endpoint == "" {
		log.Info().Str("recipient", recipientEmail).Str("link", shareLink).
			Msg("mail endpoint not configured, skipping share notification")
		return nil
	}

	payload := mailRequest{
		From:    mailAddress{Email: m.fromEmail, Name: m.fromName},
		To:      []mailAddress{{Email: recipientEmail}},
		Subject: "Files have been shared with you",
		Text: fmt.Sprintf(
			"You have received secure files. Open the link to view them:\n\n%s\n\nThe link expires automatically.",
			shareLink,
		),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send mail request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail provider returned %d: %s", resp.StatusCode, detail)
	}

	return nil
}
