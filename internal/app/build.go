package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"digestd/internal/config"
	"digestd/internal/delivery"
	"digestd/internal/digest"
	"digestd/internal/scheduler"
	"digestd/internal/source"
	"digestd/internal/source/mail"
	"digestd/internal/source/mock"
	"digestd/internal/source/slack"
	"digestd/internal/storage"
	logx "digestd/pkg/logx"
)

// mapPolicy turns the config retry block into a fetch policy. Zero fields
// keep the built-in per-category defaults.
func mapPolicy(path string, rc config.RetryConfig) (source.Policy, error) {
	base, err := config.ParseDurationField(path+".base_delay", rc.BaseDelay)
	if err != nil {
		return source.Policy{}, err
	}
	if rc.MaxAttempts < 0 {
		return source.Policy{}, fmt.Errorf("%s.max_attempts must be >= 0", path)
	}
	if rc.Multiplier < 0 {
		return source.Policy{}, fmt.Errorf("%s.multiplier must be >= 0", path)
	}
	return source.Policy{
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   base,
		Multiplier:  rc.Multiplier,
	}, nil
}

// sinceFunc binds a source's collection lower bound to its stored
// checkpoint. Without storage every run falls back to the window.
func (a *App) sinceFunc(id digest.SourceID) source.SinceFunc {
	return func(ctx context.Context) time.Time {
		if a.store == nil {
			return time.Time{}
		}
		t, ok, err := a.store.Checkpoint(ctx, id)
		if err != nil {
			a.log.Warn("checkpoint read failed",
				logx.String("source", string(id)), logx.Err(err))
			return time.Time{}
		}
		if !ok {
			return time.Time{}
		}
		return t
	}
}

// buildRegistrations constructs one collector per enabled source.
func (a *App) buildRegistrations(cfg *config.Config) ([]source.Registration, error) {
	var regs []source.Registration

	if sc := cfg.Sources.Slack; sc != nil && sc.Enabled {
		window, err := config.ParseDurationField("sources.slack.window", sc.Window)
		if err != nil {
			return nil, err
		}
		policy, err := mapPolicy("sources.slack.retry", sc.Retry)
		if err != nil {
			return nil, err
		}
		col, err := slack.New(slack.Config{
			Token:  sc.Token,
			Window: window,
		}, a.sinceFunc(digest.SourceSlack), a.log)
		if err != nil {
			return nil, fmt.Errorf("sources.slack: %w", err)
		}
		regs = append(regs, source.Registration{Collector: col, Policy: policy})
	}

	if mc := cfg.Sources.Mail; mc != nil && mc.Enabled {
		window, err := config.ParseDurationField("sources.mail.window", mc.Window)
		if err != nil {
			return nil, err
		}
		policy, err := mapPolicy("sources.mail.retry", mc.Retry)
		if err != nil {
			return nil, err
		}
		tls := true
		if mc.TLS != nil {
			tls = *mc.TLS
		}
		col, err := mail.New(mail.Config{
			Host:     mc.Host,
			Port:     mc.Port,
			Username: mc.Username,
			Password: mc.Password,
			TLS:      tls,
			Mailbox:  mc.Mailbox,
			Window:   window,
		}, a.sinceFunc(digest.SourceMail), a.log)
		if err != nil {
			return nil, fmt.Errorf("sources.mail: %w", err)
		}
		regs = append(regs, source.Registration{Collector: col, Policy: policy})
	}

	if cfg.Sources.Mock != nil && cfg.Sources.Mock.Enabled {
		regs = append(regs, source.Registration{Collector: mock.New(a.log)})
	}

	return regs, nil
}

// buildDispatcher constructs the delivery fan-out from config.
func (a *App) buildDispatcher(cfg *config.Config) (*delivery.Dispatcher, error) {
	timeout, err := config.ParseDurationField("delivery.timeout", cfg.Delivery.Timeout)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(cfg.Digest.Title)
	if title == "" {
		title = digest.DefaultTitle
	}

	var senders []delivery.Sender
	for i, ch := range cfg.Delivery.Channels {
		s, err := delivery.NewShoutrrrSender(ch.Name, ch.URL, title, timeout)
		if err != nil {
			return nil, fmt.Errorf("delivery.channels[%d]: %w", i, err)
		}
		senders = append(senders, s)
	}
	if tg := cfg.Delivery.Telegram; tg != nil && tg.Enabled {
		s, err := delivery.NewTelegramSender(tg.Token, tg.ChatID,
			a.log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("delivery.telegram: %w", err)
		}
		senders = append(senders, s)
	}

	return delivery.NewDispatcher(senders, timeout,
		a.log.With(logx.String("comp", "delivery")), a.bus), nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Spec:     cfg.Scheduler.Spec,
		Timezone: cfg.Scheduler.Timezone,
	}
}

func mapDigestOptions(cfg *config.Config) digest.Options {
	return digest.Options{
		Title:         cfg.Digest.Title,
		PreviewLength: cfg.Digest.PreviewLength,
	}
}

// mapStorageConfig returns the storage config and whether storage is enabled.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	switch driver {
	case "file", "sqlite", "sqlite3":
	default:
		return storage.Config{}, false, fmt.Errorf("storage.driver: unknown driver %q", driver)
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required for driver %q", driver)
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, true, nil
}

// validateConfig is the transactional pre-commit check for hot reloads. It
// must be cheap and side-effect free: no network clients are constructed.
func validateConfig(cfg *config.Config) error {
	if sc := cfg.Sources.Slack; sc != nil && sc.Enabled {
		if strings.TrimSpace(sc.Token) == "" {
			return fmt.Errorf("sources.slack.token is required when enabled")
		}
		if _, err := config.ParseDurationField("sources.slack.window", sc.Window); err != nil {
			return err
		}
		if _, err := mapPolicy("sources.slack.retry", sc.Retry); err != nil {
			return err
		}
	}
	if mc := cfg.Sources.Mail; mc != nil && mc.Enabled {
		if strings.TrimSpace(mc.Host) == "" {
			return fmt.Errorf("sources.mail.host is required when enabled")
		}
		if strings.TrimSpace(mc.Username) == "" || mc.Password == "" {
			return fmt.Errorf("sources.mail.username and password are required when enabled")
		}
		if mc.Port < 0 || mc.Port > 65535 {
			return fmt.Errorf("sources.mail.port out of range")
		}
		if _, err := config.ParseDurationField("sources.mail.window", mc.Window); err != nil {
			return err
		}
		if _, err := mapPolicy("sources.mail.retry", mc.Retry); err != nil {
			return err
		}
	}

	for i, ch := range cfg.Delivery.Channels {
		if strings.TrimSpace(ch.Name) == "" {
			return fmt.Errorf("delivery.channels[%d].name is required", i)
		}
		if strings.TrimSpace(ch.URL) == "" {
			return fmt.Errorf("delivery.channels[%d].url is required", i)
		}
	}
	if tg := cfg.Delivery.Telegram; tg != nil && tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			return fmt.Errorf("delivery.telegram.token is required when enabled")
		}
		if tg.ChatID == 0 {
			return fmt.Errorf("delivery.telegram.chat_id is required when enabled")
		}
	}
	if _, err := config.ParseDurationField("delivery.timeout", cfg.Delivery.Timeout); err != nil {
		return err
	}

	if cfg.Digest.PreviewLength < 0 {
		return fmt.Errorf("digest.preview_length must be >= 0")
	}

	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}
