package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/eegluit-cloud/neonplay-paygate/internal/auth"
	"github.com/eegluit-cloud/neonplay-paygate/internal/config"
	"github.com/eegluit-cloud/neonplay-paygate/internal/gateway"
	"github.com/eegluit-cloud/neonplay-paygate/internal/handlers"
	"github.com/eegluit-cloud/neonplay-paygate/internal/migrations"
	"github.com/eegluit-cloud/neonplay-paygate/internal/services"
	"github.com/eegluit-cloud/neonplay-paygate/internal/storage"
	"github.com/eegluit-cloud/neonplay-paygate/internal/wallet"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// App структура для управления приложением и его зависимостями.
type App struct {
	cfg    *config.Config
	dbPool *pgxpool.Pool
	echo   *echo.Echo
	poller *services.StatusPoller

	// Handlers
	paymentHandler *handlers.PaymentHandler
	webhookHandler *handlers.WebhookHandler
}

// NewApp создаёт и инициализирует новое приложение.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		cfg: cfg,
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initDependencies(); err != nil {
		return nil, fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	app.initServer()

	return app, nil
}

// initDatabase инициализирует подключение к базе данных и выполняет миграции.
func (app *App) initDatabase(ctx context.Context) error {
	if app.cfg.DatabaseURI == "" {
		return fmt.Errorf("DATABASE_URI is required")
	}

	// Применение миграций
	log.Println("Running database migrations...")
	sqlDB, err := sql.Open("pgx", app.cfg.DatabaseURI)
	if err != nil {
		return fmt.Errorf("unable to open database connection: %w", err)
	}
	defer sqlDB.Close()

	if err := migrations.Run(sqlDB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Migrations completed successfully")

	// Подключение к базе данных через pgxpool
	dbPool, err := pgxpool.New(ctx, app.cfg.DatabaseURI)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		return fmt.Errorf("unable to ping database: %w", err)
	}

	app.dbPool = dbPool
	log.Println("Successfully connected to database")

	return nil
}

// initDependencies инициализирует все зависимости приложения (storage, services, handlers).
func (app *App) initDependencies() error {
	if app.cfg.GatewayBaseURL == "" || app.cfg.GatewayMerchantID == "" || app.cfg.GatewaySecret == "" {
		return fmt.Errorf("gateway credentials are required: GATEWAY_BASE_URL, GATEWAY_MERCHANT_ID, GATEWAY_SECRET")
	}

	// Storage layer
	orderStorage := storage.NewPostgresOrderStorage(app.dbPool)
	webhookStorage := storage.NewPostgresWebhookStorage(app.dbPool)
	walletStorage := storage.NewPostgresWalletStorage(app.dbPool)
	statisticsStorage := storage.NewPostgresStatisticsStorage(app.dbPool)

	// Клиент процессинга
	gatewayClient := gateway.NewHTTPClient(gateway.Config{
		BaseURL:    app.cfg.GatewayBaseURL,
		MerchantID: app.cfg.GatewayMerchantID,
		Secret:     app.cfg.GatewaySecret,
		Version:    app.cfg.GatewayVersion,
		Timeout:    app.cfg.GatewayTimeout,
	})

	// Service layer
	ledger := wallet.NewLedger(app.dbPool, orderStorage, walletStorage)
	statistics := services.NewStatisticsAggregator(statisticsStorage, log.Default())
	reconciliation := services.NewReconciliationService(app.dbPool, orderStorage, webhookStorage, ledger, statistics, gatewayClient, services.ReconciliationConfig{
		GatewaySecret:    app.cfg.GatewaySecret,
		CallbackBaseURL:  app.cfg.CallbackBaseURL,
		WebhookAllowList: app.cfg.WebhookAllowList,
		WebhookTxTimeout: app.cfg.WebhookTxTimeout,
	}, log.Default())

	// Handler layer
	app.paymentHandler = handlers.NewPaymentHandler(reconciliation)
	app.webhookHandler = handlers.NewWebhookHandler(reconciliation, log.Default())

	// Диагностический поллер зависших ордеров
	app.poller = services.NewStatusPoller(orderStorage, gatewayClient, app.cfg.PendingPollInterval, app.cfg.PendingMinAge, log.Default())

	if len(app.cfg.WebhookAllowList) == 0 {
		log.Println("WARNING: WEBHOOK_ALLOW_LIST is empty, callbacks are accepted from any source IP")
	}

	return nil
}

// initServer инициализирует HTTP-сервер и настраивает маршруты.
func (app *App) initServer() {
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Gzip())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
	}))

	// Callback процессинга: аутентификация по подписи, не по JWT
	e.POST("/api/webhook/deposit", app.webhookHandler.Deposit)
	e.POST("/api/webhook/withdrawal", app.webhookHandler.Withdrawal)

	// Защищённые маршруты (требуют аутентификации)
	protected := e.Group("/api/payment")
	protected.Use(auth.JWTMiddleware(app.cfg.JWTSecret))
	protected.POST("/deposit", app.paymentHandler.CreateDeposit)
	protected.POST("/withdrawal", app.paymentHandler.CreateWithdrawal)
	protected.GET("/deposit/:merchantOrderID/status", app.paymentHandler.DepositStatus)
	protected.GET("/withdrawal/:merchantOrderID/status", app.paymentHandler.WithdrawalStatus)
	protected.GET("/deposits", app.paymentHandler.ListDeposits)
	protected.GET("/withdrawals", app.paymentHandler.ListWithdrawals)
	protected.GET("/gateway/balance", app.paymentHandler.GatewayBalance)

	app.echo = e
}

// Start запускает приложение.
func (app *App) Start(ctx context.Context) error {
	log.Println("Starting status poller...")
	app.poller.Start(ctx)

	// Запуск сервера
	log.Printf("Starting server on %s", app.cfg.RunAddress)
	if err := app.echo.Start(app.cfg.RunAddress); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}

	return nil
}

// Shutdown корректно завершает работу приложения.
func (app *App) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	if err := app.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	if app.dbPool != nil {
		app.dbPool.Close()
	}

	log.Println("Server gracefully stopped")
	return nil
}
