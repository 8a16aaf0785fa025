package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatsync/chat"
	"chatsync/config"
	"chatsync/handlers"
	"chatsync/history"
	"chatsync/logger"
	"chatsync/metrics"
	"chatsync/middleware"
	"chatsync/models"
	"chatsync/realtime"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the sync engine and the local control API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		OutputPath: cfg.Logger.OutputPath,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if cfg.Store.Secret == "" {
		log.Warn("store secret is empty; the stored token is only obfuscated")
	}

	push, err := realtime.NewClient(realtime.Options{
		BaseURL: cfg.Server.WebsocketURL,
		Reconnect: realtime.ReconnectPolicy{
			InitialInterval: cfg.Reconnect.InitialInterval,
			MaxInterval:     cfg.Reconnect.MaxInterval,
			MaxAttempts:     cfg.Reconnect.MaxAttempts,
		},
		Logger:  log,
		Metrics: m,
	})
	if err != nil {
		return err
	}

	// The REST client signs requests with whatever identity the engine holds.
	var engine *chat.Engine
	rest, err := history.NewClient(history.Options{
		BaseURL:  cfg.Server.APIURL,
		Identity: middleware.IdentityFunc(func() *models.Identity { return engine.Identity() }),
		Timeout:  cfg.Client.RequestTimeout,
		Rate:     cfg.Client.PageRateLimit,
		Burst:    cfg.Client.PageBurst,
		Logger:   log,
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	engine = chat.NewEngine(ctx, chat.EngineOptions{
		Opener:        chat.ChannelOpener(push),
		History:       rest,
		Store:         store,
		TypingTimeout: cfg.Client.TypingTimeout,
		Listener:      handlers.Publish,
		Logger:        log,
		Metrics:       m,
	})
	if err := engine.Start(); err != nil {
		return err
	}
	defer engine.Close()

	handlers.Setup(engine, log)
	go handlers.RunHub(ctx)

	srv := &http.Server{
		Addr:              cfg.API.Listen,
		Handler:           handlers.NewRouter(cfg.API.AccessKey, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("control API listening", logger.String("addr", cfg.API.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
