package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tankman61/VibeTrade/internal/broadcast"
	"github.com/Tankman61/VibeTrade/internal/config"
	"github.com/Tankman61/VibeTrade/internal/generate"
	"github.com/Tankman61/VibeTrade/internal/ingest"
	"github.com/Tankman61/VibeTrade/internal/interrupt"
	"github.com/Tankman61/VibeTrade/internal/logger"
	"github.com/Tankman61/VibeTrade/internal/metrics"
	"github.com/Tankman61/VibeTrade/internal/models"
	"github.com/Tankman61/VibeTrade/internal/normalize"
	"github.com/Tankman61/VibeTrade/internal/risk"
	"github.com/Tankman61/VibeTrade/internal/router"
	"github.com/Tankman61/VibeTrade/internal/server"
	"github.com/Tankman61/VibeTrade/internal/storage"
	"github.com/Tankman61/VibeTrade/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	registry := prometheus.NewRegistry()
	mets := metrics.New(registry)

	store, err := storage.New(cfg.Storage.MaxPoints, cfg.Storage.MaxInterrupts, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	hub := broadcast.NewHub()
	hub.SetFailureCallback(func() {
		mets.BroadcastFailures.Inc()
	})
	hub.SetCountCallback(func(n int) {
		mets.ConnectedClients.Set(float64(n))
	})

	gateway, err := generate.New(generate.Config{
		OpenAIAPIKey:      cfg.Generation.OpenAIAPIKey,
		OpenAIBaseURL:     cfg.Generation.OpenAIBaseURL,
		OpenAIModel:       cfg.Generation.OpenAIModel,
		ElevenLabsAPIKey:  cfg.Generation.ElevenLabsAPIKey,
		ElevenLabsBaseURL: cfg.Generation.ElevenLabsBaseURL,
		VoiceID:           cfg.Generation.VoiceID,
		Timeout:           cfg.Generation.Timeout,
		AudioDir:          cfg.Generation.AudioDir,
		SynthesisPerMin:   cfg.Generation.SynthesisPerMin,
	})
	if err != nil {
		logger.Fatal("Failed to initialize generation gateway: %v", err)
	}
	gateway.SetFallbackCallback(func(kind string) {
		mets.GenerationFallbacks.WithLabelValues(kind).Inc()
	})

	var notifier *telegram.Notifier
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram notifier: %v", err)
		}
		logger.Info("Telegram notifier initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	deps := router.Deps{
		Normalizer:  normalize.New(cfg.Risk.WindowSize),
		Engine: risk.New(risk.Config{
			Weights: map[models.Source]float64{
				models.SourceExchange:         cfg.Risk.ExchangeWeight,
				models.SourcePredictionMarket: cfg.Risk.PredictionMarketWeight,
				models.SourceSentiment:        cfg.Risk.SentimentWeight,
			},
			ExtremeHigh:   cfg.Risk.ExtremeHigh,
			ExtremeLow:    cfg.Risk.ExtremeLow,
			Amplification: cfg.Risk.Amplification,
		}),
		Controller:  interrupt.New(cfg.Interrupt.Threshold, cfg.Interrupt.Cooldown),
		Gateway:     gateway,
		Hub:         hub,
		Store:       store,
		Metrics:     mets,
		HistorySize: cfg.Risk.HistorySize,
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	pipeline := router.New(deps)

	listeners := buildListeners(cfg, mets, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pipeline.Run(ctx)
	}()
	for _, l := range listeners {
		wg.Add(1)
		go func(l ingest.Listener) {
			defer wg.Done()
			l.Run(ctx, pipeline.Emit)
		}(l)
	}

	srv := server.New(cfg, pipeline, hub, listeners, store, registry)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Risk console started (threshold: %.1f, cooldown: %v, window_size: %d)",
		cfg.Interrupt.Threshold,
		cfg.Interrupt.Cooldown,
		cfg.Risk.WindowSize,
	)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, cleaning up...")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed: %v", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down HTTP server: %v", err)
	}
	wg.Wait()
	logger.Info("Service stopped")
}

// buildListeners constructs the three feed listeners. A feed with no URL
// configured runs on synthetic data from the start.
func buildListeners(cfg *config.Config, mets *metrics.Metrics, notifier *telegram.Notifier) []ingest.Listener {
	onDegrade := func(source models.Source) {
		logger.Error("Feed %s degraded to synthetic data", source)
		if notifier != nil {
			if err := notifier.NotifyDegraded(source); err != nil {
				logger.Warn("Failed to send degradation notification: %v", err)
			}
		}
	}
	onReconnect := func(source models.Source) {
		mets.ListenerReconnects.WithLabelValues(string(source)).Inc()
	}
	onMalformed := func(source models.Source) {
		mets.MalformedPayloads.WithLabelValues(string(source)).Inc()
	}

	build := func(source models.Source, decode ingest.DecodeFunc, feed config.FeedConfig, subscribe []byte) ingest.Listener {
		fallback := ingest.NewSynthetic(source, feed.SyntheticInterval)
		if feed.URL == "" {
			logger.Warn("No URL configured for %s feed, running synthetic", source)
			return fallback
		}
		return ingest.NewLive(source, decode, fallback, ingest.LiveOptions{
			URL:           feed.URL,
			Subscribe:     subscribe,
			FailureBudget: feed.FailureBudget,
			ReconnectMin:  feed.ReconnectMin,
			ReconnectMax:  feed.ReconnectMax,
			ReadTimeout:   feed.ReadTimeout,
			OnDegrade:     onDegrade,
			OnReconnect:   onReconnect,
			OnMalformed:   onMalformed,
		})
	}

	marketSubscribe := []byte(`{"type":"subscribe","channel":"markets","market_id":"all"}`)

	return []ingest.Listener{
		build(models.SourceExchange, ingest.DecodeExchangeTrade, cfg.Feeds.Exchange, nil),
		build(models.SourcePredictionMarket, ingest.DecodeMarketProbability, cfg.Feeds.PredictionMarket, marketSubscribe),
		build(models.SourceSentiment, ingest.DecodeSentiment, cfg.Feeds.Sentiment, nil),
	}
}
