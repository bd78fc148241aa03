package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"perpdepth/internal/cache/redis"
	"perpdepth/internal/config"
	"perpdepth/internal/dispatch"
	"perpdepth/internal/display"
	"perpdepth/internal/exchange"
	"perpdepth/internal/factory"
	"perpdepth/internal/history"
	"perpdepth/internal/logger"
	"perpdepth/internal/metrics"
	"perpdepth/internal/orderbook"
	"perpdepth/internal/snapshot"
	"perpdepth/internal/supervisor"
	"perpdepth/internal/websocket"
)

func main() {
	configPath := flag.String("config", "config.yml", "Path to the YAML configuration file")
	logInterval := flag.Duration("log-interval", 0, "Interval for printing the depth table (0 uses the config value)")
	noDisplay := flag.Bool("no-display", false, "Disable the console depth table")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logInterval > 0 {
		cfg.Display.UpdateInterval = *logInterval
	}
	if *noDisplay {
		cfg.Display.Enabled = false
	}

	log := logger.New()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("Exited with error")
		os.Exit(1)
	}
	log.WithComponent("main").Info("All exchanges closed. Goodbye!")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Log) error {
	mainLog := log.WithComponent("main")
	m := metrics.New()

	exchangeNames := cfg.ExchangeNames()
	coins := cfg.Analytics.Coins
	registry := orderbook.NewRegistry(exchangeNames, coins)

	mainLog.WithFields(logger.Fields{
		"exchanges": exchangeNames,
		"coins":     coins,
		"bp_levels": cfg.Analytics.BpLevels,
	}).Info("Starting perp depth monitor")

	exchanges := make([]exchange.Exchange, 0, len(exchangeNames))
	supervisors := make([]*supervisor.Supervisor, 0, len(exchangeNames))
	for _, exCfg := range cfg.EnabledExchanges() {
		ex, err := factory.NewExchange(factory.ExchangeConfig{
			Name:             exCfg.Name,
			URL:              exCfg.URL,
			Coins:            coins,
			Markets:          exCfg.Markets,
			Books:            registry.ForExchange(string(exCfg.Name)),
			Log:              log,
			Metrics:          m,
			UpdateBuffer:     cfg.App.UpdateChannelSize,
			SubscribeRate:    cfg.App.SubscribeRate,
			HandshakeTimeout: cfg.App.HandshakeTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create exchange %s: %w", exCfg.Name, err)
		}
		exchanges = append(exchanges, ex)
		supervisors = append(supervisors, supervisor.New(ex, supervisor.Config{
			ReconnectDelay: cfg.App.ReconnectDelay,
			Log:            log,
			Metrics:        m,
		}))
	}

	agg := history.NewAggregator(history.Config{
		Capacity:   cfg.Analytics.HistoryLength,
		Exchanges:  exchangeNames,
		Coins:      coins,
		BpLevels:   cfg.Analytics.BpLevels,
		TradeSizes: cfg.Analytics.TradeSizes,
		Log:        log,
		Metrics:    m,
	})

	builder := snapshot.NewBuilder(snapshot.Config{
		Exchanges:  exchangeNames,
		Coins:      coins,
		BpLevels:   cfg.Analytics.BpLevels,
		TradeSizes: cfg.Analytics.TradeSizes,
		FeeRates:   cfg.FeeRates(),
	}, registry.View, agg)

	server := websocket.NewServer(websocket.Config{
		Port:              cfg.Server.Port,
		BroadcastInterval: cfg.Server.BroadcastInterval,
		DefaultTick:       cfg.Server.DefaultTickLevel,
		MaxBookLevels:     cfg.Server.MaxBookLevels,
		Log:               log,
		Metrics:           m,
	}, builder, registry, exchanges)

	bus := dispatch.New(log, 0)
	serverUpdates, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	sources := make([]<-chan exchange.Update, len(exchanges))
	for i, ex := range exchanges {
		sources[i] = ex.Updates()
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, sup := range supervisors {
		g.Go(func() error { return sup.Run(ctx) })
		g.Go(func() error {
			watchEvents(ctx, sup, server)
			return nil
		})
	}

	g.Go(func() error { return bus.Run(ctx, sources...) })
	g.Go(func() error { return agg.Run(ctx, cfg.Analytics.HistoryInterval, registry.View) })
	g.Go(func() error { return server.Run(ctx, serverUpdates) })
	g.Go(func() error { return server.Start(ctx) })

	if cfg.Display.Enabled {
		table := display.New(display.Config{
			Exchanges: exchangeNames,
			Coins:     coins,
			BpLevels:  cfg.Analytics.BpLevels,
			Interval:  cfg.Display.UpdateInterval,
		}, registry.View)
		g.Go(func() error { return table.Run(ctx) })
	}

	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			// the feed is optional; the monitor keeps running without it
			mainLog.WithError(err).Warn("Redis unavailable, snapshot feed disabled")
		} else {
			defer client.Close()
			feed := redis.NewFeed(client, builder, redis.FeedConfig{
				Key:      cfg.Redis.Key,
				Channel:  cfg.Redis.Channel,
				TTL:      cfg.Redis.TTL,
				Interval: cfg.Redis.Interval,
				Log:      log,
			})
			g.Go(func() error { return feed.Run(ctx) })
		}
	}

	<-ctx.Done()
	mainLog.Info("Shutting down...")

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- g.Wait() }()

	select {
	case err := <-shutdownDone:
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("shutdown timed out")
	}
}

// watchEvents marks the push feed dirty whenever a connection changes state,
// since books are reset on every reconnect
func watchEvents(ctx context.Context, sup *supervisor.Supervisor, server *websocket.Server) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sup.Events():
			server.MarkDirty()
		}
	}
}
