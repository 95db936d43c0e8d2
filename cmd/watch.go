package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/api"
	"github.com/JakeFAU/pagewatch/internal/app"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

const shutdownTimeout = 10 * time.Second

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run cycles on an interval and serve health and status endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return watch(cmd.Context(), a)
		},
	}
}

func watch(ctx context.Context, a *app.App) error {
	cfg := a.Config()
	logger := a.Logger()
	tracker := api.NewTracker()

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           api.NewServer(tracker, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	err := cycleLoop(ctx, a.RunOnce, tracker, cfg.Watch.Interval, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http server shutdown failed", zap.Error(serr))
	}
	if serr := <-serveErr; serr != nil && err == nil {
		err = fmt.Errorf("http server: %w", serr)
	}
	return err
}

// cycleLoop runs cycles back to back, sleeping interval between them, until
// ctx is done. Cycle errors are logged and recorded, never fatal.
func cycleLoop(
	ctx context.Context,
	runOnce func(context.Context) (monitor.Summary, error),
	tracker *api.Tracker,
	interval time.Duration,
	logger *zap.Logger,
) error {
	for {
		summary, err := runOnce(ctx)
		if ctx.Err() != nil {
			logger.Info("watch stopped")
			return nil
		}
		if err != nil {
			logger.Error("cycle failed", zap.Error(err))
		}
		tracker.Record(summary, err)

		next := time.Now().Add(interval)
		tracker.ScheduleNext(next)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("watch stopped")
			return nil
		case <-tracker.Requests():
			timer.Stop()
			logger.Info("cycle requested over http")
		case <-timer.C:
		}
	}
}
