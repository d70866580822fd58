// Package app wires the process together: config, logging, storage, the
// job scheduler, the notification providers and the inspection service.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inspectd/internal/config"
	"inspectd/internal/inspection"
	"inspectd/internal/jobs"
	"inspectd/internal/notify"
	"inspectd/internal/store"
	logx "inspectd/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	store store.Store
	jobs  *jobs.Service
	insp  *inspection.Service

	cancel context.CancelFunc
	done   chan struct{} // closed when background loops exit
}

// New loads config, builds every component and returns the assembled app.
// Provider constructors fail fast on missing credentials, so a bad config
// never makes it past startup.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	rt, err := cfg.Runtime()
	if err != nil {
		return nil, err
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

	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: rt.StorageBusyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	jobSvc := jobs.New(jobs.Config{
		Workers:   rt.Workers,
		QueueSize: rt.QueueSize,
		Timezone:  cfg.Scheduler.Timezone,
	}, log.With(logx.String("comp", "jobs")))

	email, err := buildEmailDispatcher(cfg, rt, log)
	if err != nil {
		st.Close()
		return nil, err
	}
	sms, err := buildSMSDispatcher(cfg, rt, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	inspSvc := inspection.New(inspection.Config{
		SendHour: rt.SendHour,
		Location: rt.Location,
	}, inspection.Deps{
		Store: st,
		Jobs:  jobSvc,
		Email: email,
		SMS:   sms,
	}, log.With(logx.String("comp", "inspection")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   st,
		jobs:    jobSvc,
		insp:    inspSvc,
	}, nil
}

// Inspections exposes the inspection service for callers embedding the app.
func (a *App) Inspections() *inspection.Service { return a.insp }

// Start launches the scheduler, reloads persisted reminder jobs, arms the
// daily recurrence sweep and begins watching the config file.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	a.jobs.Start(runCtx)

	n, err := a.insp.ReloadJobs(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("reload reminder jobs: %w", err)
	}
	a.log.Info("reminder jobs reloaded", logx.Int("count", n))

	cfg := a.cfgm.Get()
	rt, err := cfg.Runtime()
	if err != nil {
		cancel()
		return err
	}
	if err := a.insp.StartDailySweep(fmt.Sprintf("%02d:%02d", rt.SweepHour, rt.SweepMin)); err != nil {
		cancel()
		return fmt.Errorf("start daily sweep: %w", err)
	}

	sub := a.cfgm.Subscribe(8)
	go func() {
		defer close(a.done)
		a.reloadLoop(runCtx, sub)
	}()
	go func() {
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

// reloadLoop applies config updates published by the watcher. Logging and
// scheduler settings take effect live; storage and provider credentials
// need a restart, which gets logged instead of silently ignored.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(last, newCfg)
			last = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}

			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})

			rt, err := newCfg.Runtime()
			if err != nil {
				a.log.Warn("invalid config after reload; keeping previous", logx.Err(err))
				continue
			}
			a.jobs.Apply(jobs.Config{
				Workers:   rt.Workers,
				QueueSize: rt.QueueSize,
				Timezone:  newCfg.Scheduler.Timezone,
			})

			for _, s := range sections {
				switch s {
				case "storage", "email", "sms":
					a.log.Warn("config section changed; restart required to take effect",
						logx.String("section", s))
				}
			}

			fields := append([]logx.Field{
				logx.String("changed", strings.Join(sections, ",")),
			}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

// Stop shuts everything down: scheduler first so no job fires mid-teardown,
// then storage, then the log sinks.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel == nil {
		return nil
	}
	a.log.Info("stopping")
	a.cancel()

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	a.jobs.Stop(stopCtx)
	cancel()

	if a.done != nil {
		select {
		case <-a.done:
		case <-ctx.Done():
			a.log.Warn("reload loop did not exit in time")
		}
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

func buildEmailDispatcher(cfg *config.Config, rt config.Runtime, log logx.Logger) (*notify.EmailDispatcher, error) {
	primary, err := notify.NewMailtrap(notify.MailtrapConfig{
		BaseURL:   cfg.Email.Primary.BaseURL,
		Token:     cfg.Email.Primary.Token,
		FromEmail: cfg.Email.From,
		FromName:  cfg.Email.FromName,
		Timeout:   rt.EmailAPITimeout,
	}, log.With(logx.String("comp", "mailtrap")))
	if err != nil {
		return nil, fmt.Errorf("email primary: %w", err)
	}

	var fallback notify.EmailSender
	if cfg.Email.Fallback.Enabled {
		relay, err := notify.NewSMTPRelay(notify.SMTPConfig{
			Addr:      cfg.Email.Fallback.Addr,
			Username:  cfg.Email.Fallback.Username,
			Password:  cfg.Email.Fallback.Password,
			FromEmail: cfg.Email.From,
			FromName:  cfg.Email.FromName,
		}, log.With(logx.String("comp", "smtp")))
		if err != nil {
			return nil, fmt.Errorf("email fallback: %w", err)
		}
		fallback = relay
	}

	return notify.NewEmailDispatcher(primary, fallback, notify.EmailDispatcherConfig{
		BatchSize: rt.EmailBatchSize,
		RetryMax:  rt.EmailRetryMax,
		RetryBase: rt.EmailRetryBase,
	}, log.With(logx.String("comp", "email")))
}

func buildSMSDispatcher(cfg *config.Config, rt config.Runtime, log logx.Logger) (*notify.SMSDispatcher, error) {
	twilio, err := notify.NewTwilio(notify.TwilioConfig{
		BaseURL:    cfg.SMS.BaseURL,
		AccountSID: cfg.SMS.AccountSID,
		AuthToken:  cfg.SMS.AuthToken,
		From:       cfg.SMS.From,
		Timeout:    rt.SMSTimeout,
	}, log.With(logx.String("comp", "twilio")))
	if err != nil {
		return nil, fmt.Errorf("sms provider: %w", err)
	}
	return notify.NewSMSDispatcher(twilio, rt.SMSRatePerSec, log.With(logx.String("comp", "sms")))
}
