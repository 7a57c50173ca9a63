package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reddit-pipeline/api"
	"reddit-pipeline/config"
	"reddit-pipeline/fetcher"
	"reddit-pipeline/logging"
	"reddit-pipeline/metrics"
	"reddit-pipeline/model"
	"reddit-pipeline/pipeline"
	"reddit-pipeline/publisher"
	"reddit-pipeline/storage"
)

const (
	serviceName = "reddit-pipeline"
	version     = "1.0.0"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Reddit extract, transform and load pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	var req model.RunRequest

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch a subreddit once and write it to the configured sinks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			if !cmd.Flags().Changed("comments") {
				req.IncludeComments = app.config.IncludeComments
			}

			result, err := app.pipeline.Run(ctx, req)
			if result != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(result); encErr != nil {
					app.logger.WithError(encErr).Warn("Failed to print run result")
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&req.Subreddit, "subreddit", "", "subreddit to fetch (default from SUBREDDIT)")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum posts to request (default from FETCH_LIMIT)")
	cmd.Flags().StringVar(&req.FileName, "file-name", "", "output name without extension (default <subreddit>_<YYYYMMDD>)")
	cmd.Flags().BoolVar(&req.IncludeComments, "comments", false, "also fetch the comments of every post")
	cmd.Flags().IntVar(&req.CommentLimit, "comment-limit", 0, "maximum comments per post (default from COMMENT_LIMIT)")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			srv := &http.Server{
				Addr:    app.config.HTTPAddr,
				Handler: api.Setup(app.pipeline, app.logger),
			}

			errCh := make(chan error, 1)
			go func() {
				app.logger.WithField("addr", srv.Addr).Info("HTTP server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			app.logger.Info("Received shutdown signal, stopping...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// app holds the wired components shared by both commands.
type app struct {
	config    *config.Config
	logger    logging.Logger
	sinks     []storage.Sink
	publisher *publisher.NATSPublisher
	pipeline  *pipeline.Pipeline
}

func newApp(ctx context.Context) (*app, error) {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)
	logger.SetLevel(config.GetLogLevel())

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	metrics.Init(serviceName, version, getEnvironment())

	sinks, err := storage.OpenSinks(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{config: cfg, logger: logger, sinks: sinks}

	var pub pipeline.Publisher
	if cfg.NATSUrl != "" {
		np, err := publisher.NewNATSPublisher(cfg.NATSUrl, cfg.ResultSubject, logger)
		if err != nil {
			storage.CloseAll(sinks, logger)
			return nil, err
		}
		a.publisher = np
		pub = np
	}

	a.pipeline = pipeline.New(cfg, fetcher.NewFetcher(cfg, logger), sinks, pub, logger)
	return a, nil
}

func (a *app) close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	storage.CloseAll(a.sinks, a.logger)
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
