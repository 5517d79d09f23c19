// Package bootstrap wires the invoicing components from configuration. The
// server and the operator CLI share it so both act on invoices the same way.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dukerupert/courtbill/internal"
	"github.com/dukerupert/courtbill/internal/billing"
	"github.com/dukerupert/courtbill/internal/document"
	"github.com/dukerupert/courtbill/internal/dunning"
	"github.com/dukerupert/courtbill/internal/email"
	"github.com/dukerupert/courtbill/internal/entity"
	"github.com/dukerupert/courtbill/internal/gatewaysync"
	"github.com/dukerupert/courtbill/internal/jobs"
	"github.com/dukerupert/courtbill/internal/notification"
	"github.com/dukerupert/courtbill/internal/postgres"
	"github.com/dukerupert/courtbill/internal/service"
	"github.com/dukerupert/courtbill/internal/storage"
	"github.com/dukerupert/courtbill/internal/tax"
	"github.com/dukerupert/courtbill/internal/telemetry"
)

// App holds the wired components. Optional parts are nil when their
// configuration is absent: Stripe without STRIPE_SECRET_KEY, Queue and NATS
// without NATS_URL.
type App struct {
	Config   *internal.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *telemetry.InvoicingMetrics

	Pool      *pgxpool.Pool
	Store     *postgres.Store
	Invoices  service.InvoiceService
	Scheduler *dunning.Scheduler

	Stripe *billing.StripeProvider
	NATS   *nats.Conn
	Queue  *jobs.Queue

	closers []func()
}

// Migrate applies pending migrations over a database/sql connection.
func Migrate(databaseURL string) error {
	db, err := OpenSQL(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// OpenSQL opens and pings a database/sql connection for goose.
func OpenSQL(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

// New connects to every configured backend and builds the invoice service
// and dunning scheduler. Close releases what New opened, also on error.
func New(ctx context.Context, cfg *internal.Config, logger zerolog.Logger) (_ *App, err error) {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = telemetry.NewInvoicingMetrics("courtbill", app.Registry)

	app.Pool, err = postgres.Connect(ctx, cfg.DatabaseUrl, postgres.PoolConfig{
		MaxConns:        int32(cfg.Dunning.Concurrency) + 8,
		MaxConnLifetime: time.Hour,
	})
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.Pool.Close)
	app.Store = postgres.NewStore(app.Pool)
	logger.Info().Msg("Database connection established")

	// Documents
	files, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	documents := document.NewPDFRenderer(files, document.Issuer{
		Name:        cfg.Issuer.Name,
		Address:     cfg.Issuer.Address,
		Email:       cfg.Issuer.Email,
		VATNumber:   cfg.Issuer.VATNumber,
		BankDetails: cfg.Issuer.BankDetails,
	}, logger, app.Metrics)

	notifier, err := newNotifier(cfg, documents, logger, app.Metrics)
	if err != nil {
		return nil, err
	}

	calculator, err := newTaxCalculator(cfg)
	if err != nil {
		return nil, err
	}

	var gateway service.GatewayPublisher
	if cfg.Stripe.Enabled() {
		app.Stripe, err = billing.NewStripeProvider(billing.StripeConfig{
			APIKey:              cfg.Stripe.SecretKey,
			WebhookSecret:       cfg.Stripe.WebhookSecret,
			MaxRetries:          cfg.Stripe.MaxRetries,
			TimeoutSeconds:      cfg.Stripe.TimeoutSeconds,
			DefaultDaysUntilDue: int64(cfg.Invoice.PaymentTermsDays),
		}, logger, app.Metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Stripe provider: %w", err)
		}
		gateway = gatewaysync.NewPusher(app.Stripe, logger, app.Metrics)
		logger.Info().Msg("Stripe gateway enabled")
	}

	if cfg.NatsURL != "" {
		app.NATS, err = nats.Connect(cfg.NatsURL,
			nats.Name("courtbill"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		app.closers = append(app.closers, app.NATS.Close)
		app.Queue = jobs.NewQueue(app.NATS, jobs.DefaultSubjectPrefix, logger, app.Metrics)
	}

	terms, err := service.ParsePaymentTerms(strconv.Itoa(cfg.Invoice.PaymentTermsDays))
	if err != nil {
		return nil, err
	}
	deps := service.InvoiceDeps{
		Store:      app.Store,
		Strategies: entity.NewDefaultRegistry(app.Store, logger),
		Tax:        calculator,
		Documents:  documents,
		Notifier:   notifier,
		Gateway:    gateway,
		Metrics:    app.Metrics,
		Logger:     logger,
	}
	if app.Queue != nil {
		deps.Renders = app.Queue
	}
	schedule := DunningSchedule(cfg)
	app.Invoices, err = service.NewInvoiceService(deps, service.InvoiceConfig{
		PaymentTerms: terms,
		Reminders:    schedule.ReminderPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize invoice service: %w", err)
	}

	locker, err := app.newLocker(ctx)
	if err != nil {
		return nil, err
	}
	app.Scheduler, err = dunning.NewScheduler(app.Invoices, locker, schedule, logger, app.Metrics)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// DunningSchedule builds the dunning configuration. Its reminder policy is
// also the invoice service's, so scheduled and manual reminders follow the
// same limits.
func DunningSchedule(cfg *internal.Config) dunning.Config {
	d := dunning.DefaultConfig()
	d.ReminderThresholds = cfg.Dunning.ReminderThresholds
	d.MaxReminders = cfg.Dunning.MaxReminders
	d.SuspensionGraceDays = cfg.Dunning.SuspensionGraceDays
	d.Interval = cfg.Dunning.Interval
	d.Concurrency = cfg.Dunning.Concurrency
	return d
}

// Reconciler applies gateway events through the invoice service.
func (a *App) Reconciler() *gatewaysync.Reconciler {
	return gatewaysync.NewReconciler(a.Invoices, a.Store, a.Logger, a.Metrics)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) newLocker(ctx context.Context) (dunning.Locker, error) {
	if a.Config.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(a.Config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return dunning.NewRedisLocker(rdb), nil
}

func newNotifier(cfg *internal.Config, docs notification.DocumentOpener, logger zerolog.Logger, metrics *telemetry.InvoicingMetrics) (*notification.EmailSender, error) {
	var sender email.Sender
	if cfg.Email.PostmarkToken != "" {
		sender = email.NewPostmarkSender(cfg.Email.PostmarkToken, cfg.Email.From)
		logger.Info().Msg("Email: Postmark")
	} else {
		sender = email.NewSMTPSender(&email.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
		}, logger)
		logger.Info().Str("host", cfg.Email.Host).Int("port", cfg.Email.Port).Msg("Email: SMTP")
	}

	svc, err := email.NewService(sender, cfg.Email.From, cfg.Email.FromName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email service: %w", err)
	}
	return notification.NewEmailSender(svc, docs, notification.EmailConfig{
		Cc:                 cfg.Notify.Cc,
		Bcc:                cfg.Notify.Bcc,
		BankDetails:        cfg.Issuer.BankDetails,
		FinalReminderLevel: cfg.Dunning.MaxReminders,
	}, logger, metrics), nil
}

func newTaxCalculator(cfg *internal.Config) (tax.Calculator, error) {
	if !cfg.Invoice.DefaultTaxRate.IsPositive() {
		return tax.NewNoTaxCalculator(), nil
	}
	flat, err := tax.NewFlatRateCalculator(cfg.Invoice.DefaultTaxRate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tax calculator: %w", err)
	}
	return flat, nil
}
