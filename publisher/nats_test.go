package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reddit-pipeline/logging"
	"reddit-pipeline/model"
)

func TestEncodeResult(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data, err := EncodeResult(model.RunResult{
		RequestID:    "req-1",
		Subreddit:    "golang",
		PostsWritten: 3,
		Success:      true,
	}, at)
	require.NoError(t, err)

	var msg ResultMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "req-1", msg.Result.RequestID)
	assert.Equal(t, 3, msg.Result.PostsWritten)
	assert.Equal(t, "reddit-pipeline", msg.Source)
	assert.True(t, msg.Timestamp.Equal(at))
}

func TestNewNATSPublisherUnreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", "reddit.pipeline.result", logging.NewDiscardLogger())
	assert.Error(t, err)
}
