package storage

import (
	"context"
	"fmt"

	"reddit-pipeline/config"
	"reddit-pipeline/logging"
)

// OpenSinks opens every sink enabled in cfg, in the configured order. On
// failure the sinks opened so far are closed.
func OpenSinks(ctx context.Context, cfg *config.Config, logger logging.Logger) ([]Sink, error) {
	var sinks []Sink
	for _, name := range cfg.Sinks {
		var (
			sink Sink
			err  error
		)
		switch name {
		case "csv":
			sink = NewCSVSink(cfg.OutputPath)
		case "sqlite":
			sink, err = OpenSQLite(cfg.SQLitePath)
		case "mongo":
			sink, err = ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		default:
			err = fmt.Errorf("unknown sink %q", name)
		}
		if err != nil {
			CloseAll(sinks, logger)
			return nil, fmt.Errorf("open %s sink: %w", name, err)
		}
		logger.WithField("sink", name).Debug("Sink ready")
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

// CloseAll closes sinks, logging failures.
func CloseAll(sinks []Sink, logger logging.Logger) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			logger.WithError(err).WithField("sink", s.Name()).Warn("Failed to close sink")
		}
	}
}
