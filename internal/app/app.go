package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ath-alerts/internal/config"
	"ath-alerts/internal/detect"
	"ath-alerts/internal/feed"
	"ath-alerts/internal/notify"
	"ath-alerts/internal/pipeline"
	"ath-alerts/internal/scheduler"
	"ath-alerts/internal/server"
	"ath-alerts/internal/store"
	"ath-alerts/internal/subscribers"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFeedClient() *feed.Client {
	cfg := a.Config.Feed
	return feed.NewClient(feed.ClientOptions{
		BaseURL:         cfg.BaseURL,
		APIKeys:         cfg.APIKeys,
		VsCurrency:      cfg.VsCurrency,
		PageSize:        cfg.PageSize,
		MinCallInterval: cfg.MinCallInterval,
		CacheTTL:        cfg.CacheTTL,
		Timeout:         cfg.RequestTimeout,
		UserAgent:       cfg.UserAgent,
		MaxFailures:     cfg.Breaker.MaxFailures,
		Cooldown:        cfg.Breaker.Cooldown,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*store.Store, error) {
	cfg := a.Config.Redis
	st := store.NewStore(store.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		OpTimeout:   cfg.OpTimeout,
	})
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func (a *App) openSubscribers(ctx context.Context) (*subscribers.Store, func(), error) {
	pool, err := subscribers.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	st := subscribers.NewStore(pool, a.Config.Database.QueryTimeout)
	return st, st.Close, nil
}

func (a *App) newSender() notify.Sender {
	mailer := a.Config.Notification.Mailer
	if mailer.Enabled {
		return notify.NewMailSender(mailer.BaseURL, mailer.APIKey, mailer.FromAddress, mailer.RequestTimeout, a.Logger)
	}
	a.Logger.Warn().Msg("mailer not enabled; notifications are logged, not sent")
	return &logSender{logger: a.Logger}
}

// newPipeline assembles the full detection pipeline against the live feed.
// The returned closer releases the store and subscriber pool.
func (a *App) newPipeline(ctx context.Context) (*pipeline.Service, func(), error) {
	return a.assemblePipeline(ctx, a.newFeedClient())
}

func (a *App) assemblePipeline(ctx context.Context, fetcher feed.RankedFetcher) (*pipeline.Service, func(), error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	subs, closeSubs, err := a.openSubscribers(ctx)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	engine := detect.NewEngine(st, a.Config.Detection.MaxATHRatio, a.Logger)
	gate := notify.NewController(st, a.Config.Notification.Cooldown, a.Logger)
	queue := notify.NewDispatcher(subs, a.newSender(), st, a.Logger)
	svc := pipeline.New(fetcher, engine, gate, queue, a.Config.Feed.Pages, a.Logger)

	closer := func() {
		closeSubs()
		_ = st.Close()
	}
	return svc, closer, nil
}

// Serve runs the trigger HTTP server until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closer, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer closer()

	srv := server.New(a.Config.Server, svc, a.Logger)

	a.Logger.Info().Msg("starting trigger server")
	err = srv.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("server terminated with error")
		return err
	}

	a.Logger.Info().Msg("trigger server stopped")
	return nil
}

// RunLoop drives the pipeline from the in-process scheduler.
func (a *App) RunLoop(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closer, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer closer()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Msg("starting scheduled pipeline")
	err = sched.Run(ctx, func(ctx context.Context, firedAt time.Time) error {
		_, err := svc.RunCycle(ctx)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("scheduled pipeline terminated with error")
		return err
	}

	a.Logger.Info().Msg("scheduled pipeline stopped")
	return nil
}

// Scan runs exactly one cycle and reports the summary.
func (a *App) Scan(ctx context.Context) (pipeline.Summary, error) {
	svc, closer, err := a.newPipeline(ctx)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer closer()

	return svc.RunCycle(ctx)
}

// logSender stands in for the mail API in development environments.
type logSender struct {
	logger zerolog.Logger
}

func (l *logSender) Send(ctx context.Context, msg notify.Message) error {
	l.logger.Info().
		Str("to", msg.Recipient.Email).
		Str("symbol", msg.AssetSymbol).
		Str("new_ath", msg.NewATH.String()).
		Msg("notification (mailer disabled)")
	return nil
}

var _ notify.Sender = (*logSender)(nil)
