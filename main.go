package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"profiles/internal/config"
	"profiles/internal/database"
	"profiles/internal/handlers"
	"profiles/internal/logger"
	"profiles/internal/middleware"
	"profiles/internal/models"
	"profiles/internal/repositories"
	"profiles/internal/security"
	"profiles/internal/services"
	"profiles/internal/storage"
	"profiles/internal/uploads"
	"profiles/pkg/rabbitmq"
)

// App is the wired application.
type App struct {
	Config   *config.Config
	Fiber    *fiber.App
	DB       *gorm.DB
	Accounts *services.AccountService
	Auth     *services.AuthService
	Logger   *slog.Logger
	mq       *rabbitmq.Client
}

// NewApp resolves configuration from v and wires every dependency.
func NewApp(ctx context.Context, v *viper.Viper) (*App, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(appLogger)

	userModel, err := models.ResolveUserModel(cfg.UserModel)
	if err != nil {
		return nil, err
	}
	hasher, err := security.NewHasher(cfg.PasswordHasher)
	if err != nil {
		return nil, err
	}
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	var mq *rabbitmq.Client
	var events services.EventPublisher
	if cfg.RabbitMQURL != "" {
		mq, err = rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Queue: cfg.RabbitMQQueue})
		if err != nil {
			return nil, err
		}
		events = mq
	} else {
		appLogger.Info("RABBITMQ_URL not set, account events disabled")
	}

	// Opened last so that no earlier failure leaves the pool behind.
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, userModel)
	if err != nil {
		if mq != nil {
			mq.Close()
		}
		return nil, err
	}

	userRepo := repositories.NewGORMUserRepository(db)
	accounts := services.NewAccountService(userRepo, hasher, uploads.NewPathNamer(nil), store, events, appLogger)
	authService := services.NewAuthService(userRepo, hasher, cfg.JWTSecret, cfg.TokenTTL)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
			"events": mq != nil,
		})
	})

	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(accounts, authService).RegisterRoutes(apiV1)
	protected := apiV1.Group("", middleware.AuthRequired(authService))
	handlers.NewProfileHandler(accounts).RegisterRoutes(protected)

	return &App{
		Config:   cfg,
		Fiber:    app,
		DB:       db,
		Accounts: accounts,
		Auth:     authService,
		Logger:   appLogger,
		mq:       mq,
	}, nil
}

// Close releases the broker connection and the database pool.
func (a *App) Close() error {
	if a.mq != nil {
		if err := a.mq.Close(); err != nil {
			a.Logger.Error("failed to close RabbitMQ client", "error", err)
		}
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// createSuperuser implements "profiles createsuperuser --email --username --password".
func createSuperuser(app *App, args []string) error {
	fs := pflag.NewFlagSet("createsuperuser", pflag.ContinueOnError)
	email := fs.String("email", "", "superuser email (required)")
	username := fs.String("username", "", "superuser username (required)")
	password := fs.String("password", "", "superuser password (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := app.Accounts.CreateSuperuser(*email, *username, *password)
	if err != nil {
		return fmt.Errorf("createsuperuser: %w", err)
	}
	app.Logger.Info("superuser created", "user_id", user.ID, "email", user.Email)
	return nil
}

func main() {
	ctx := context.Background()

	app, err := NewApp(ctx, viper.GetViper())
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Close()

	if len(os.Args) > 1 && os.Args[1] == "createsuperuser" {
		if err := createSuperuser(app, os.Args[2:]); err != nil {
			app.Logger.Error("command failed", "error", err)
			app.Close()
			os.Exit(1)
		}
		return
	}

	if app.mq != nil {
		err := app.mq.ConsumeEvents(func(ev rabbitmq.Event) error {
			app.Logger.Info("account event received", "type", ev.Type, "occurred_at", ev.OccurredAt, "payload", string(ev.Payload))
			return nil
		})
		if err != nil {
			app.Logger.Error("failed to start event consumer", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		app.Logger.Info("starting server", "port", app.Config.AppPort)
		if err := app.Fiber.Listen(app.Config.AppPort); err != nil {
			app.Logger.Error("server failed", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	app.Logger.Info("shutting down server")
	if err := app.Fiber.ShutdownWithTimeout(10 * time.Second); err != nil {
		app.Logger.Error("error during Fiber shutdown", "error", err)
	}
	app.Logger.Info("server gracefully stopped")
}
