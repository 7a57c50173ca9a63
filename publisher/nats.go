package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"reddit-pipeline/logging"
	"reddit-pipeline/metrics"
	"reddit-pipeline/model"
)

// ResultMessage is the envelope published after every run.
type ResultMessage struct {
	Result    model.RunResult `json:"result"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
}

// NATSPublisher announces run results on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  logging.Logger
}

// NewNATSPublisher connects to the server at url.
func NewNATSPublisher(url, subject string, logger logging.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("reddit-pipeline"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSPublisher{conn: nc, subject: subject, logger: logger}, nil
}

// Close drains pending messages and closes the connection.
func (np *NATSPublisher) Close() {
	if np.conn != nil {
		if err := np.conn.Drain(); err != nil {
			np.conn.Close()
		}
	}
}

// PublishResult publishes the result and flushes so the message is on the
// wire before a short-lived process exits.
func (np *NATSPublisher) PublishResult(ctx context.Context, result model.RunResult) error {
	data, err := EncodeResult(result, time.Now())
	if err != nil {
		return err
	}

	if err := np.conn.Publish(np.subject, data); err != nil {
		metrics.NatsMessagesPublished.WithLabelValues(np.subject, "error").Inc()
		return fmt.Errorf("publish result: %w", err)
	}
	if err := np.conn.FlushWithContext(ctx); err != nil {
		metrics.NatsMessagesPublished.WithLabelValues(np.subject, "error").Inc()
		return fmt.Errorf("flush result: %w", err)
	}

	metrics.NatsMessagesPublished.WithLabelValues(np.subject, "success").Inc()
	np.logger.WithFields(logging.Fields{
		"subject":    np.subject,
		"request_id": result.RequestID,
	}).Info("Published run result to NATS")
	return nil
}

// EncodeResult builds the JSON payload for a result.
func EncodeResult(result model.RunResult, at time.Time) ([]byte, error) {
	data, err := json.Marshal(ResultMessage{
		Result:    result,
		Timestamp: at,
		Source:    "reddit-pipeline",
		Version:   "1.0",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return data, nil
}
