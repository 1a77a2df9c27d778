package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"listing-radar/internal/alerting"
	"listing-radar/internal/api"
	"listing-radar/internal/config"
	"listing-radar/internal/engine"
	"listing-radar/internal/ingest"
	"listing-radar/internal/listing"
	"listing-radar/internal/logging"
	"listing-radar/internal/metrics"
	"listing-radar/internal/pricing"
	"listing-radar/internal/scheduler"
	"listing-radar/internal/scoring"
	"listing-radar/internal/service"
	"listing-radar/internal/storage"
	"listing-radar/internal/taxonomy"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app"), Out: os.Stdout}
}

func (a *App) openStore(ctx context.Context) (storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", a.Config.Database.Driver, err)
	}
	return store, store.Close, nil
}

func (a *App) newNotifiers() ([]alerting.Notifier, func(), error) {
	cfg := a.Config.Alerting
	var (
		notifiers []alerting.Notifier
		closers   []func()
	)
	if cfg.Telegram.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Timeout, a.Logger))
	}
	if cfg.Discord.Enabled {
		notifiers = append(notifiers, alerting.NewDiscordNotifier(cfg.Discord.WebhookURL, cfg.Timeout, a.Logger))
	}
	if cfg.NATS.Enabled {
		n, err := alerting.DialNATS(cfg.NATS.URL, cfg.NATS.Subject, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, n)
		closers = append(closers, n.Close)
	}
	return notifiers, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func (a *App) newClassifier() (*taxonomy.Classifier, error) {
	var (
		rules taxonomy.Rules
		err   error
	)
	if path := a.Config.Engine.TaxonomyPath; path != "" {
		rules, err = taxonomy.LoadRules(path)
	} else {
		rules, err = taxonomy.DefaultRules()
	}
	if err != nil {
		return nil, err
	}
	return taxonomy.Compile(rules)
}

// newService wires the engine around store. sched and m may be nil.
func (a *App) newService(store storage.Store, sched *scheduler.Scheduler, m *metrics.Metrics) (*service.Service, func(), error) {
	classifier, err := a.newClassifier()
	if err != nil {
		return nil, nil, err
	}
	normalizer, err := pricing.NewNormalizer(a.Config.Engine.BaseCurrency, a.Config.Engine.CurrencyRates)
	if err != nil {
		return nil, nil, err
	}
	evaluator := engine.NewEvaluator(store, scoring.NewScorer(a.Config.Engine.Calibration), engine.Options{
		MinClusterSample: a.Config.Engine.MinClusterSample,
		MinSample:        a.Config.Engine.MinSample,
	})

	closeNotifiers := func() {}
	var dispatcher *alerting.Dispatcher
	if a.Config.Alerting.Enabled {
		notifiers, closer, err := a.newNotifiers()
		if err != nil {
			return nil, nil, err
		}
		closeNotifiers = closer
		if len(notifiers) == 0 {
			a.Logger.Warn().Msg("alerting enabled but no channel configured")
		}
		dispatcher = alerting.NewDispatcher(notifiers, alerting.DispatcherOptions{
			Cooldown:      a.Config.Alerting.Cooldown,
			RatePerMinute: a.Config.Alerting.RatePerMinute,
		}, a.Logger)
	}

	a.Logger.Debug().Int("taxonomy_version", classifier.Version()).Str("base_currency", normalizer.Base()).Msg("engine ready")

	svc := service.New(a.Config, service.Deps{
		Scheduler:  sched,
		Classifier: classifier,
		Normalizer: normalizer,
		Evaluator:  evaluator,
		Store:      store,
		AlertStore: store,
		Dispatcher: dispatcher,
		Metrics:    m,
	}, a.Logger)
	return svc, closeNotifiers, nil
}

// Run executes the long-running service: the single writer, the stale sweep,
// the HTTP API and the Kafka consumer.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Cron:         a.Config.Scheduler.Cron,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	svc, closeNotifiers, err := a.newService(store, sched, m)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	var (
		wg   sync.WaitGroup
		errs = make(chan error, 3)
	)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	a.Logger.Info().Msg("starting listing service")
	start("service", svc.Run)
	if a.Config.API.Enabled {
		handlers := api.NewHandlers(store, store, svc, m, a.Config.API.DefaultLimit)
		start("api", api.NewServer(a.Config.API, handlers, a.Logger).Run)
	}
	if a.Config.Ingest.Kafka.Enabled {
		start("kafka", ingest.NewKafkaConsumer(a.Config.Ingest.Kafka, svc, a.Logger).Run)
	}

	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("listing service stopped")
	return nil
}

// EvaluateOptions select the observations to score synchronously. File, when
// set, is read as JSON lines ("-" for stdin); otherwise Observation is used.
type EvaluateOptions struct {
	File        string
	Observation listing.Observation
	JSON        bool
}

// ExportOptions hold parameters for exporting tracked listings.
type ExportOptions struct {
	Category        string
	IncludeInactive bool
	PNGPath         string
	CSVPath         string
	MaxPoints       int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit      int
	Category   string
	Label      string
	Actionable bool
	Alerts     bool
}
