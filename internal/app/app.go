// Package app assembles the reminder engine from configuration. Every
// command builds one App at startup and drives it through the task runner.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"iptvpanel/internal/config"
	"iptvpanel/internal/core"
	"iptvpanel/internal/database"
	"iptvpanel/internal/db"
	"iptvpanel/internal/external"
	"iptvpanel/internal/notifications/chatbot"
	notify "iptvpanel/internal/notifications/core"
	"iptvpanel/internal/notifications/email"
	"iptvpanel/internal/notifications/sms"
	"iptvpanel/internal/notifications/stb"
	"iptvpanel/internal/reminder"
	"iptvpanel/internal/scheduler"
)

// App holds the wired services of one process.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Orchestrator *reminder.Orchestrator
	Ledger       *reminder.Ledger
	Runner       *scheduler.Runner
	Probes       []core.HealthProbe

	closers []func()
}

// stores groups the persistence ports so either backend can fill them.
type stores struct {
	devices reminder.DeviceStore
	configs reminder.ReminderConfigStore
	ledger  reminder.LedgerStore
	locks   scheduler.JobLocker
	history scheduler.JobHistorian
	ping    func(ctx context.Context) error
	close   func()
}

// New connects the store, builds the configured channels and returns the
// assembled App. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	st, err := openStores(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, closers: []func(){st.close}}

	dispatchers, err := buildDispatchers(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if len(dispatchers) == 0 {
		logger.Warn("no delivery channel is configured, every tenant will be skipped")
	}

	metrics, publisher, err := buildAWSSinks(ctx, cfg.AWS, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var ledgerOpts []reminder.LedgerOption
	if cfg.Reminder.ArchiveDir != "" {
		archiver, err := reminder.NewFileArchiver(cfg.Reminder.ArchiveDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ledger archive: %w", err)
		}
		ledgerOpts = append(ledgerOpts, reminder.WithArchiver(archiver))
	}

	a.Ledger = reminder.NewLedger(st.ledger, cfg.Reminder.Lookback(), logger, ledgerOpts...)
	a.Orchestrator = reminder.NewOrchestrator(
		st.configs,
		reminder.NewSelector(st.devices, cfg.Reminder.ExpiredCatchupDays),
		a.Ledger,
		dispatchers,
		logger,
		reminder.Options{DateLayout: cfg.Reminder.DateLayout, Metrics: metrics},
	)

	a.Runner, err = scheduler.NewRunner(scheduler.RunnerConfig{
		Sweeper:   a.Orchestrator,
		Purger:    a.Ledger,
		Locks:     st.locks,
		History:   st.history,
		Publisher: publisher,
		Location:  cfg.Reminder.Location(),
		LockTTL:   cfg.Reminder.LockTTL,
		Retention: cfg.Reminder.Retention(),
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Probes = []core.HealthProbe{core.ProbeFunc{ProbeName: "store", Fn: st.ping}}

	channels := make([]string, 0, len(dispatchers))
	for _, d := range dispatchers {
		channels = append(channels, string(d.Channel()))
	}
	logger.Info("reminder engine ready",
		"store", cfg.Store.Driver,
		"channels", channels,
		"timezone", cfg.Reminder.Timezone,
		"worker_id", a.Runner.WorkerID(),
	)
	return a, nil
}

// Close releases the store connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openStores(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*stores, error) {
	switch cfg.Driver {
	case "sqlite":
		sqlDB, err := database.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		s := database.NewStore(sqlDB)
		logger.Info("sqlite store opened", "path", cfg.SQLitePath)
		return &stores{
			devices: s,
			configs: s,
			ledger:  s,
			locks:   s,
			history: s,
			ping:    s.Ping,
			close:   func() { _ = sqlDB.Close() },
		}, nil

	default:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := database.MigratePostgres(ctx, pool, logger); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		return &stores{
			devices: db.NewDeviceRepository(pool),
			configs: db.NewReminderConfigRepository(pool),
			ledger:  db.NewLedgerRepository(pool),
			locks:   db.NewJobLockRepository(pool),
			history: db.NewJobHistoryRepository(pool),
			ping:    pool.Ping,
			close:   pool.Close,
		}, nil
	}
}

// buildDispatchers returns the paced dispatchers of every configured
// channel. Unconfigured channels are left out so tenants using them fail
// the capability check instead of the send.
func buildDispatchers(cfg *config.Config, logger *slog.Logger) ([]notify.Dispatcher, error) {
	typed := TypedLogger(logger)
	httpClient := &http.Client{Timeout: cfg.Reminder.SendTimeout}
	var out []notify.Dispatcher

	if cfg.STB.Configured() {
		portals := []stb.Portal{{
			Name: "primary",
			Client: external.NewStalkerPortalClient(httpClient, external.PortalClientConfig{
				BaseURL:  cfg.STB.PrimaryURL,
				Username: cfg.STB.Username,
				Password: cfg.STB.Password.Unmask(),
			}),
		}}
		if cfg.STB.SecondaryURL != "" {
			portals = append(portals, stb.Portal{
				Name: "secondary",
				Client: external.NewStalkerPortalClient(httpClient, external.PortalClientConfig{
					BaseURL:  cfg.STB.SecondaryURL,
					Username: cfg.STB.Username,
					Password: cfg.STB.Password.Unmask(),
				}),
			})
		}
		d, err := stb.NewDispatcher(typed.With("channel", "stb"), portals...)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	if cfg.SMS.Configured() {
		gateway := external.NewBatchSMSClient(httpClient, external.SMSGatewayConfig{
			BaseURL: cfg.SMS.BaseURL,
			Token:   cfg.SMS.Token.Unmask(),
			Sender:  cfg.SMS.Sender,
		})
		out = append(out, sms.NewDispatcher(gateway, cfg.SMS.MaxBatch, cfg.Reminder.InterSendDelay, typed.With("channel", "sms")))
	}

	if cfg.ChatBot.Configured() {
		d, err := chatbot.NewDispatcher(chatbot.Config{
			Token:  cfg.ChatBot.Token.Unmask(),
			APIURL: cfg.ChatBot.APIURL,
		}, typed.With("channel", "chatbot"))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	if cfg.Email.Configured() {
		d, err := email.NewDispatcher(email.Config{
			Host:           cfg.Email.Host,
			Port:           cfg.Email.Port,
			Username:       cfg.Email.Username,
			Password:       cfg.Email.Password.Unmask(),
			From:           cfg.Email.From,
			DefaultSubject: cfg.Email.DefaultSubject,
			Timeout:        cfg.Reminder.SendTimeout,
		}, typed.With("channel", "email"))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	for i, d := range out {
		out[i] = notify.NewPacer(d, cfg.Reminder.InterSendDelay, cfg.Reminder.SendTimeout)
	}
	return out, nil
}

// buildAWSSinks returns the CloudWatch metrics and SQS summary publisher
// when enabled. Both results are nil interfaces when disabled.
func buildAWSSinks(ctx context.Context, cfg config.AWSConfig, logger *slog.Logger) (notify.SweepMetrics, scheduler.SummaryPublisher, error) {
	if !cfg.MetricsEnabled && cfg.SummaryQueueURL == "" {
		return nil, nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	typed := TypedLogger(logger)

	var metrics notify.SweepMetrics
	if cfg.MetricsEnabled {
		cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}
		})
		metrics = notify.NewCloudWatchSweepMetrics(cw, typed)
	}

	var publisher scheduler.SummaryPublisher
	if cfg.SummaryQueueURL != "" {
		q := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}
		})
		publisher = notify.NewSummaryPublisher(q, cfg.SummaryQueueURL, typed)
	}
	return metrics, publisher, nil
}
