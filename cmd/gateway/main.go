// Command gateway is the speech gateway's process entrypoint: it wires
// configuration, the EPD engine connection, the STT batch backend, the
// session manager, the Kafka side-channel, and both HTTP surfaces (client
// stream + admin/metrics) together and runs them until a shutdown signal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wawa9149/speech-gateway/internal/app"
	"github.com/wawa9149/speech-gateway/internal/config"
	"github.com/wawa9149/speech-gateway/internal/delivery"
	"github.com/wawa9149/speech-gateway/internal/dispatch"
	"github.com/wawa9149/speech-gateway/internal/epd"
	"github.com/wawa9149/speech-gateway/internal/events"
	gatewayhttp "github.com/wawa9149/speech-gateway/internal/http"
	"github.com/wawa9149/speech-gateway/internal/observability"
	"github.com/wawa9149/speech-gateway/internal/observability/metrics"
	"github.com/wawa9149/speech-gateway/internal/segment"
	"github.com/wawa9149/speech-gateway/internal/session"
	"github.com/wawa9149/speech-gateway/internal/stt"
	"github.com/wawa9149/speech-gateway/internal/stt/googlebatch"
	"github.com/wawa9149/speech-gateway/internal/stt/httpbatch"
	"github.com/wawa9149/speech-gateway/internal/transport"
)

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	log := application.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	batcher, closeBatcher, err := newBatcher(ctx, cfg.STT)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct stt backend")
	}
	if closeBatcher != nil {
		defer closeBatcher()
	}

	epdClient := epd.New(epd.Config{
		URL:               cfg.EPD.URL,
		ReconnectInterval: cfg.EPD.ReconnectInterval,
		HeartbeatInterval: cfg.EPD.HeartbeatInterval,
	})
	defer epdClient.Close()

	// manager is captured by the dispatcher's Router closure before it
	// exists, and assigned once constructed below — the dispatcher never
	// calls route until Run starts, well after manager is set.
	var manager *session.Manager
	route := func(sessionID string, rec delivery.Record) {
		manager.Router()(sessionID, rec)
	}

	dispatcher := dispatch.New(batcher, dispatch.Config{
		BatchSize:    cfg.Dispatch.BatchSize,
		TickInterval: cfg.Dispatch.TickInterval,
		Provider:     cfg.STT.Provider,
	}, route, metrics.DefaultMetrics, log)

	manager = session.New(
		epdClient,
		dispatcher,
		publisher,
		metrics.DefaultMetrics,
		segment.Config{
			PreRollChunks:   cfg.FSM.PreRollChunks,
			StepChunks:      cfg.FSM.StepChunks,
			LongPauseChunks: cfg.FSM.LongPauseChunks,
		},
		cfg.SegmentLimits,
		cfg.Drain,
		log,
	)
	epdClient.OnStatus(manager.OnEPD)

	streamHandler := transport.NewHandler(manager, log)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      gatewayhttp.NewRouter(application, streamHandler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // the stream endpoint is long-lived
		IdleTimeout:  60 * time.Second,
	}
	adminServer := observability.NewServer(":"+cfg.Service.AdminPort, epdClient.Connected)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := epdClient.Connect(gctx); err != nil {
			return err
		}
		if !epdClient.Connected() {
			return epd.ErrNotConnected
		}
		return nil
	})
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		adminServer.Start()
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()
		select {
		case <-gctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}
	})

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	<-gctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("a supervised task exited with an error")
	}
	application.Shutdown()
}

// newBatcher selects the configured STT backend and returns its cleanup
// function, if any.
func newBatcher(ctx context.Context, cfg config.STTConfig) (stt.Batcher, func(), error) {
	switch cfg.Provider {
	case "google":
		client, err := googlebatch.New(ctx, googlebatch.Config{LanguageCode: cfg.LanguageCode})
		if err != nil {
			return nil, nil, fmt.Errorf("googlebatch: %w", err)
		}
		return client, func() { _ = client.Close() }, nil
	default:
		client := httpbatch.New(httpbatch.Config{
			BatchURL:      cfg.BatchURL,
			Token:         cfg.Token,
			Codec:         cfg.Codec,
			MP3EncoderBin: cfg.MP3EncoderBin,
		})
		return client, nil, nil
	}
}
