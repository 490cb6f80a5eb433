package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/scribbo-backend/internal/client"
	"github.com/rocketscienceinc/scribbo-backend/internal/config"
	"github.com/rocketscienceinc/scribbo-backend/internal/console"
	"github.com/rocketscienceinc/scribbo-backend/internal/game"
	"github.com/rocketscienceinc/scribbo-backend/internal/hub"
	"github.com/rocketscienceinc/scribbo-backend/internal/metrics"
	"github.com/rocketscienceinc/scribbo-backend/internal/repository"
	"github.com/rocketscienceinc/scribbo-backend/internal/repository/storage"
	"github.com/rocketscienceinc/scribbo-backend/internal/transport/tcp"
	"github.com/rocketscienceinc/scribbo-backend/transport/rest"
)

// RunApp - runs the game server until ctx is canceled or a signal arrives.
func RunApp(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := withShutdownSignals(ctx, log)
	defer cancel()

	m := metrics.New()
	store := game.NewStore(logger, hub.New(logger, m), conf.MaxPlayers)

	var resultRepo repository.ResultRepository
	if conf.Redis.Enabled() {
		redisStorage, err := storage.New(ctx, conf.Redis.GetRedisAddr())
		if err != nil {
			return fmt.Errorf("could not connect to redis storage: %w", err)
		}

		defer func() {
			if err = redisStorage.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}()

		resultRepo = repository.NewResultRepository(redisStorage.Connection)
		log.Info("Archiving finished games", "redis", conf.Redis.GetRedisAddr())
	}

	gameServer := tcp.New(logger, store, resultRepo, m, tcp.Options{
		ReadTimeout:   conf.ReadTimeout,
		WriteTimeout:  conf.WriteTimeout,
		OutboundQueue: conf.OutboundQueue,
	})

	// run HTTP server
	httpErrCh := make(chan error, 1)
	if conf.HTTPPort != "" {
		go func() {
			log.Info("Starting HTTP server", "port", conf.HTTPPort)
			if httpErr := rest.Start(ctx, conf.HTTPPort, m.Handler()); httpErr != nil {
				log.Error("HTTP server error", "error", httpErr)
				httpErrCh <- httpErr
			}
		}()
	}

	// run game server
	tcpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting game server", "addr", conf.Addr())
		tcpErrCh <- gameServer.Start(ctx, conf.Addr())
	}()

	select {
	case err := <-httpErrCh:
		cancel()
		<-tcpErrCh
		return fmt.Errorf("HTTP server error: %w", err)
	case err := <-tcpErrCh:
		if err != nil {
			return fmt.Errorf("game server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		if err := <-tcpErrCh; err != nil {
			return fmt.Errorf("game server error: %w", err)
		}
		return nil
	}
}

// RunClient - connects to the game server and runs the console front-end on in and out.
func RunClient(ctx context.Context, logger *slog.Logger, conf *config.Config, in io.Reader, out io.Writer) error {
	log := logger.With("component", "app")

	ctx, cancel := withShutdownSignals(ctx, log)
	defer cancel()

	gameClient, err := client.Dial(ctx, logger, conf.Addr(), client.Options{
		RequestTimeout: conf.Client.RequestTimeout,
		StaleAfter:     conf.Client.StaleAfter,
	})
	if err != nil {
		return err
	}

	defer func() {
		if err = gameClient.Close(); err != nil {
			log.Error("could not close client", "error", err)
		}
	}()

	return console.New(logger, gameClient, in, out).Run(ctx, conf.Client.Name)
}

func withShutdownSignals(ctx context.Context, log *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)

		select {
		case sig := <-sigs:
			log.Info("Received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
