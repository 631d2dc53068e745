package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"duet/internal/relay"
)

func main() {
	var (
		addr      string
		appSecret string
		redisURL  string
		debug     bool
	)
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "Run the duet relay",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if appSecret == "" {
				appSecret = os.Getenv("DUET_APP_SECRET")
			}
			log, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, log, addr, appSecret, redisURL)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&appSecret, "appsecret", "", "pre-shared application secret (or DUET_APP_SECRET)")
	cmd.Flags().StringVar(&redisURL, "redis", "", "redis:// URL for the offline mailbox")
	cmd.Flags().BoolVar(&debug, "debug", false, "debug logging")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serve(ctx context.Context, log *zap.Logger, addr, appSecret, redisURL string) error {
	var mailbox relay.Mailbox
	if redisURL != "" {
		rm, err := relay.OpenRedisMailbox(ctx, redisURL)
		if err != nil {
			return err
		}
		defer rm.Close()
		mailbox = rm
		log.Info("mailbox on redis")
	}
	if appSecret == "" {
		log.Warn("no application secret; any client may connect")
	}

	hub := relay.NewHub(mailbox, log.Named("hub"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           relay.NewServer(hub, appSecret, log.Named("ws")).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("relay listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
