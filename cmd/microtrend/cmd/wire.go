package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/api"
	"github.com/kjannette/microtrend-backend/internal/bot"
	"github.com/kjannette/microtrend-backend/internal/cache"
	"github.com/kjannette/microtrend-backend/internal/config"
	"github.com/kjannette/microtrend-backend/internal/db"
	"github.com/kjannette/microtrend-backend/internal/external"
	"github.com/kjannette/microtrend-backend/internal/journal"
	"github.com/kjannette/microtrend-backend/internal/logging"
	"github.com/kjannette/microtrend-backend/internal/notifications"
	"github.com/kjannette/microtrend-backend/internal/repository"
)

var (
	_ bot.Store = (*repository.Store)(nil)
	_ bot.Store = (*journal.SQLite)(nil)
)

// app is the wired process: config, logger, engine and whatever
// connections it opened.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	engine  *bot.Engine
	notify  *notifications.Sender
	checks  map[string]api.Check
	closers []func()
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}
	return cfg, log, nil
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.LogSummary(log)

	a := &app{cfg: cfg, log: log, checks: map[string]api.Check{}}

	binance := external.NewBinanceClient(external.BinanceOptions{
		BaseURL:        cfg.BinanceBaseURL(),
		APIKey:         cfg.BinanceAPIKey,
		APISecret:      cfg.BinanceAPISecret,
		PricePrecision: int32(cfg.PricePrecision),
		QtyPrecision:   int32(cfg.QuantityPrecision),
		Logger:         log,
	})

	if !cfg.PaperTrading {
		if mark, err := binance.MarkPrice(ctx, cfg.Symbol); err != nil {
			log.Warn("mark price unavailable, order sizing not checked", zap.String("symbol", cfg.Symbol), zap.Error(err))
		} else {
			for _, w := range cfg.SizingWarnings(mark) {
				log.Warn(w)
			}
		}
	}

	deps := bot.Deps{Market: binance, Logger: log}
	if binance.HasCredentials() {
		deps.Trader = binance
	} else {
		log.Info("no Binance credentials, live trading unavailable")
	}

	if cfg.RedisAddr != "" {
		client := cache.NewClient(cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := cache.Ping(ctx, client); err != nil {
			log.Warn("redis unreachable, reads go straight to the exchange", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.RedisAddr))
		}
		deps.Market = cache.NewCandleCache(binance, client, cfg.CandleCacheTTL(), log)
		a.checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, client) }
		a.closers = append(a.closers, func() { _ = client.Close() })
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	if store != nil {
		deps.Store = store
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				log.Warn("store close", zap.Error(err))
			}
		})
	}

	a.notify = notifications.NewSender(notifications.Options{
		WebhookURL:     cfg.WebhookURL,
		BotName:        cfg.BotName,
		TelegramToken:  cfg.TelegramBotToken,
		TelegramChatID: cfg.TelegramChatID,
		Logger:         log,
	})
	deps.Notifier = a.notify

	if cfg.FearGreedEnabled {
		deps.Sentiment = external.NewFearGreedClient("")
	}

	a.engine = bot.NewEngine(*cfg, deps)
	if err := a.engine.Load(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("restore state: %w", err)
	}
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (bot.Store, error) {
	switch cfg.StorageDriver {
	case "postgres":
		log.Info("connecting to postgres", zap.String("host", cfg.DBHost), zap.Int("port", cfg.DBPort), zap.String("db", cfg.DBName))
		pool, err := db.Connect(cfg.DSN())
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return repository.NewStore(pool), nil
	case "sqlite":
		log.Info("opening sqlite journal", zap.String("path", cfg.SQLitePath))
		j, err := journal.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return j, nil
	default:
		return nil, nil
	}
}

// close releases connections in reverse order of opening.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}
