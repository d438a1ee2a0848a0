// Package app wires configuration, storage, transports and the delivery
// pipeline into a runnable unit. It supports two modes: a one-shot delivery
// run, and a daemon that polls on a cron cadence with hot config reload.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"github.com/GovTribe/notify/internal/config"
	"github.com/GovTribe/notify/internal/delivery"
	"github.com/GovTribe/notify/internal/queue"
	"github.com/GovTribe/notify/internal/schedule"
	opshttp "github.com/GovTribe/notify/internal/server/http"
	"github.com/GovTribe/notify/internal/store"
	"github.com/GovTribe/notify/internal/transport/mail"
	"github.com/GovTribe/notify/internal/transport/push"
	"github.com/GovTribe/notify/pkg/logx"
)

// Options are command-line overrides on top of the config file.
type Options struct {
	// Window overrides delivery.window when > 0.
	Window time.Duration
}

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service

	store store.Store
	queue *queue.Service
	orch  *delivery.Orchestrator
	ops   *opshttp.Server

	cron    *cron.Cron
	started bool
}

func New(cfgPath string, opts Options) (*App, error) {
	// Bootstrap logger for everything that happens before the config-driven
	// logging service exists.
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "boot"))

	cfgm := config.NewManager(cfgPath)
	cfgm.SetLogger(bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		bootLog.Error("config load failed", logx.String("path", cfgPath), logx.Err(err))
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	mailer := mail.New(mail.Config{
		Server:     cfg.Mail.Server,
		Port:       cfg.Mail.Port,
		User:       cfg.Mail.User,
		Pass:       cfg.Mail.Pass,
		From:       cfg.Mail.From,
		FromHeader: cfg.Mail.FromHeader,
	})

	pushTimeout, err := config.ParseDurationField("push.timeout", cfg.Push.Timeout)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	gateway := push.New(push.Config{
		URL:        cfg.Push.URL,
		AppKey:     cfg.Push.AppKey,
		Secret:     cfg.Push.Secret,
		RatePerSec: cfg.Push.RatePerSec,
		Timeout:    pushTimeout,
	})

	pollInterval, err := config.ParseDurationField("queue.poll_interval", cfg.Queue.PollInterval)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	// The queue and the scheduler reference each other: the scheduler defers
	// pushes into the queue, the queue dispatches them back through the
	// scheduler. The dispatcher is wired right after construction.
	q := queue.New(queue.Config{
		PollInterval: pollInterval,
		Batch:        cfg.Queue.Batch,
	}, st, st, nil, log.With(logx.String("comp", "queue")))

	sched := schedule.New(mailer, gateway, q, st, cfg.BaseURL, log.With(logx.String("comp", "schedule")))
	q.SetDispatcher(sched)

	window, err := config.ParseDurationField("delivery.window", cfg.Delivery.Window)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if opts.Window > 0 {
		window = opts.Window
	}
	orch := delivery.New(delivery.Config{
		Window:     window,
		EntityType: cfg.Delivery.EntityType,
	}, st, st, st, sched, log.With(logx.String("comp", "delivery")))

	var ops *opshttp.Server
	if cfg.HTTP.Enabled {
		ops = opshttp.New(opshttp.Config{Addr: cfg.HTTP.Addr}, st, orch, log.With(logx.String("comp", "http")))
	}

	return &App{
		cfgm:  cfgm,
		cfg:   cfg,
		log:   log,
		logs:  logSvc,
		store: st,
		queue: q,
		orch:  orch,
		ops:   ops,
	}, nil
}

// RunOnce performs a single delivery pass, drains any due deferred pushes,
// and returns the number of dispatched notifications.
func (a *App) RunOnce(ctx context.Context) (int, error) {
	sent, err := a.orch.Run(ctx)
	if err != nil {
		return sent, err
	}
	a.queue.RunDue(ctx)
	return sent, nil
}

// Start launches the daemon: delivery runs on a cron cadence, the deferred
// push worker, the optional ops server, and the config watcher.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	a.started = true

	spec := strings.TrimSpace(a.cfg.Delivery.Schedule)
	if spec == "" {
		spec = "@every 2m"
	}

	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	a.cron = cron.New(cron.WithParser(parser))
	_, err := a.cron.AddFunc(spec, func() {
		if _, err := a.orch.Run(ctx); err != nil {
			a.log.Error("delivery run failed", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("delivery.schedule %q: %w", spec, err)
	}
	a.cron.Start()

	a.queue.Start(ctx)

	if a.ops != nil {
		go func() {
			if err := a.ops.Start(ctx); err != nil {
				a.log.Error("ops server failed", logx.Err(err))
			}
		}()
	}

	// Hot reload: logging is the only section applied live; storage changes
	// get a restart hint.
	sub := a.cfgm.Subscribe(4)
	go func() {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})
				if newCfg.Storage != a.cfg.Storage {
					a.log.Warn("storage config changed; restart required for changes to take effect")
				}
				a.cfg = newCfg
				a.log.Info("config reloaded")
			}
		}
	}()
	go func() {
		if err := a.cfgm.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	// No-op outside a systemd unit.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	a.log.Info("daemon started", logx.String("schedule", spec))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.cron != nil {
		stopCtx := a.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	a.queue.Stop(ctx)

	err := a.store.Close()
	a.log.Info("stopped")
	a.logs.Close()
	return err
}

// Close releases resources for one-shot runs that never Start().
func (a *App) Close() error {
	err := a.store.Close()
	a.logs.Close()
	return err
}
