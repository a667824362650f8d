package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-co-op/gocron/v2"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"healthvault/internal/config"
	"healthvault/internal/handler"
	"healthvault/internal/notify"
	"healthvault/internal/repository"
	"healthvault/internal/service"
	"healthvault/internal/storage"
)

func connectWithRetry(cfg *config.DatabaseConfig, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	dsn := cfg.GetDSN()

	// Сначала подключаемся к системной базе postgres: она существует всегда
	// и через нее можно создать рабочую базу при первом запуске.
	pgDSN := strings.Replace(dsn, "dbname="+cfg.Name, "dbname=postgres", 1)
	pgDB, err := sqlx.Connect("postgres", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer pgDB.Close()

	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		log.Info().Str("database", cfg.Name).Msg("database does not exist, creating")
		if _, err = pgDB.Exec(fmt.Sprintf("CREATE DATABASE %q", cfg.Name)); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Warn().Err(err).Int("attempt", i+1).Int("max", maxAttempts).
			Msg("failed to connect to database, retrying")
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("failed to create migrate instance")
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Warn().Uint("version", version).Msg("found dirty database state, forcing version")
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// buildBackends собирает бэкенды по списку приоритета. Обязателен только
// первый уровень: s3 и minio пропускаются с предупреждением, если их
// конфигурация отсутствует или недоступна.
func buildBackends(ctx context.Context, cfg *config.Config, db *sqlx.DB) ([]storage.Backend, error) {
	var backends []storage.Backend

	for _, tag := range strings.Split(cfg.Storage.Priority, ",") {
		tag = strings.TrimSpace(tag)
		switch tag {
		case storage.TagLocal:
			local, err := storage.NewLocalBackend(cfg.Storage.LocalDir)
			if err != nil {
				return nil, fmt.Errorf("failed to init local backend: %w", err)
			}
			backends = append(backends, local)

		case storage.TagInline:
			backends = append(backends, storage.NewInlineBackend(db))

		case storage.TagS3:
			s3Config, err := storage.NewS3Config(".s3.env")
			if err != nil {
				log.Warn().Err(err).Msg("s3 backend not configured, skipping")
				continue
			}
			s3Backend, err := storage.NewS3Backend(s3Config)
			if err != nil {
				log.Warn().Err(err).Msg("s3 backend unavailable, skipping")
				continue
			}
			backends = append(backends, s3Backend)

		case storage.TagMinio:
			minioConfig, err := storage.NewMinioConfig(".minio.env")
			if err != nil {
				log.Warn().Err(err).Msg("minio backend not configured, skipping")
				continue
			}
			minioBackend, err := storage.NewMinioBackend(ctx, minioConfig)
			if err != nil {
				log.Warn().Err(err).Msg("minio backend unavailable, skipping")
				continue
			}
			backends = append(backends, minioBackend)

		default:
			return nil, fmt.Errorf("unknown storage backend %q in priority list", tag)
		}
	}

	return backends, nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Подключаемся к базе данных
	db, err := connectWithRetry(&appConfig.Database, 5, time.Second*5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database after retries")
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	// Цепочка хранилищ
	backends, err := buildBackends(context.Background(), appConfig, db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build storage backends")
	}
	chain, err := storage.NewChain(backends...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build storage chain")
	}

	// Инициализация репозиториев
	nodeRepo := repository.NewNodeRepository(db)
	shareRepo := repository.NewShareRepository(db)

	// Инициализация сервисов
	mailer := notify.NewMailer(
		appConfig.Mail.Endpoint,
		appConfig.Mail.APIKey,
		appConfig.Mail.FromEmail,
		appConfig.Mail.FromName,
	)
	nodeService := service.NewNodeService(nodeRepo, chain)
	shareService := service.NewShareService(shareRepo, nodeRepo, mailer, appConfig.Server.FrontendURL)

	// Инициализация хендлеров
	nodeHandler := handler.NewNodeHandler(nodeService)
	shareHandler := handler.NewShareHandler(shareService, nodeService)
	blobHandler := handler.NewBlobHandler(chain)

	// Планировщик чистки истекших share
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			if err := shareService.SweepExpired(context.Background()); err != nil {
				log.Error().Err(err).Msg("expired share sweep failed")
			}
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule expired share sweep")
	}
	scheduler.Start()

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Owner-Id"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", nodeHandler.List)
			r.Post("/folder", nodeHandler.CreateFolder)
			r.Post("/file", nodeHandler.UploadFile)
			r.Put("/{id}", nodeHandler.Rename)
			r.Delete("/{id}", nodeHandler.Delete)
		})

		r.Route("/share", func(r chi.Router) {
			r.Post("/", shareHandler.Create)
			r.Get("/", shareHandler.List)
			r.Delete("/{id}", shareHandler.Revoke)

			// Доступ по токену, без аутентификации
			r.Get("/view/{accessToken}", shareHandler.View)
		})

		r.Get("/blobs/{backend}/*", blobHandler.Download)
	})

	server := &http.Server{
		Addr:    ":" + appConfig.Server.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", appConfig.Server.Port).Msg("starting http server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown failed")
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().Msg("server stopped")
}
