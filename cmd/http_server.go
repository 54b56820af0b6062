package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	internal "github.com/frahmantamala/cardspend/internal"
	"github.com/frahmantamala/cardspend/internal/auth"
	"github.com/frahmantamala/cardspend/internal/bulkimport"
	"github.com/frahmantamala/cardspend/internal/card"
	cardpostgres "github.com/frahmantamala/cardspend/internal/card/postgres"
	"github.com/frahmantamala/cardspend/internal/currency"
	"github.com/frahmantamala/cardspend/internal/entry"
	entrypostgres "github.com/frahmantamala/cardspend/internal/entry/postgres"
	"github.com/frahmantamala/cardspend/internal/fanout"
	"github.com/frahmantamala/cardspend/internal/mailer"
	"github.com/frahmantamala/cardspend/internal/notification"
	notificationpostgres "github.com/frahmantamala/cardspend/internal/notification/postgres"
	"github.com/frahmantamala/cardspend/internal/renewal"
	renewalpostgres "github.com/frahmantamala/cardspend/internal/renewal/postgres"
	"github.com/frahmantamala/cardspend/internal/transport/rest"
	"github.com/frahmantamala/cardspend/internal/user"
	userpostgres "github.com/frahmantamala/cardspend/internal/user/postgres"
	"github.com/frahmantamala/cardspend/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

// App bundles every wired component; the server and the sweep worker
// both build from it.
type App struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Logger   *slog.Logger
	Users    user.Repository
	Mailer   mailer.Mailer
	Notifier *notification.Service
	Signer   *auth.ActionTokenSigner
	Rates    *currency.Converter

	EntryService   *entry.Service
	CardService    *card.Service
	RenewalService *renewal.Service
	Importer       *bulkimport.Importer

	RenewalStore renewal.EntryStore
	RenewalLogs  renewal.LogRepository
}

func startHTTPServer() {
	app, err := buildApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(
		router,
		app.DB.DB,
		app.Users,
		user.NewHandler(app.Users),
		entry.NewHandler(app.EntryService),
		card.NewHandler(app.CardService),
		renewal.NewHandler(app.RenewalService, app.Signer),
		bulkimport.NewHandler(app.Importer, app.EntryService, app.Mailer, app.Config.Import.UploadDir),
		notification.NewHandler(app.Notifier),
		app.Logger,
	)

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: app.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       app.Config.Server.ReadTimeout,
		WriteTimeout:      app.Config.Server.WriteTimeout,
		IdleTimeout:       app.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := app.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func buildApp() (*App, error) {
	cfg, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	env := "development"
	if cfg.Logging.Format == "json" {
		env = "production"
	}
	logger.Init(env)
	lg := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm connection: %w", err)
	}

	users := userpostgres.NewUserRepository(gormDB)
	entryRepo := entrypostgres.NewEntryRepository(gormDB)
	renewalLogs := renewalpostgres.NewRenewalLogRepository(gormDB)
	renewalStore := renewalpostgres.NewEntryStore(gormDB)
	cardRepo := cardpostgres.NewCardRepository(gormDB)
	notificationRepo := notificationpostgres.NewNotificationRepository(gormDB)

	rates := currency.NewConverter(currency.Config{
		APIURL:   cfg.Currency.APIURL,
		CacheTTL: cfg.Currency.CacheTTL,
		Timeout:  cfg.Currency.Timeout,
	}, lg)

	var mail mailer.Mailer
	if cfg.Mail.Enabled && cfg.Mail.SendGridAPIKey != "" {
		mail = mailer.NewSendGridMailer(mailer.Config{
			APIKey:      cfg.Mail.SendGridAPIKey,
			FromAddress: cfg.Mail.FromAddress,
			FromName:    cfg.Mail.FromName,
		}, lg)
	} else {
		mail = &mailer.NoopMailer{Logger: lg}
	}

	notifier := notification.NewService(notificationRepo, lg)
	signer := auth.NewActionTokenSigner(cfg.Security.ApprovalTokenSecret, cfg.Security.ApprovalTokenDuration)

	fan := fanout.New(users, mail, notifier, lg)

	entryService := entry.NewService(entryRepo, renewalLogs, rates, fan, lg)
	cardService := card.NewService(cardRepo, lg)
	renewalService := renewal.NewService(renewalStore, renewalLogs, lg)
	importer := bulkimport.NewImporter(entryService, cardService, fan, cfg.Import.EmailBatchSize, lg)

	return &App{
		Config:         cfg,
		DB:             db,
		Gorm:           gormDB,
		Logger:         lg,
		Users:          users,
		Mailer:         mail,
		Notifier:       notifier,
		Signer:         signer,
		Rates:          rates,
		EntryService:   entryService,
		CardService:    cardService,
		RenewalService: renewalService,
		Importer:       importer,
		RenewalStore:   renewalStore,
		RenewalLogs:    renewalLogs,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
