package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_URI(t *testing.T) {
	tests := []struct {
		name      string
		vhost     string
		wantVhost string
	}{
		{name: "default vhost", vhost: "/", wantVhost: "/"},
		{name: "empty vhost", vhost: "", wantVhost: "/"},
		{name: "named vhost with slash", vhost: "/videogen", wantVhost: "videogen"},
		{name: "named vhost", vhost: "videogen", wantVhost: "videogen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Host:     "rabbit.internal",
				Port:     5673,
				User:     "video",
				Password: "p@ss:word/1",
				VHost:    tt.vhost,
			}

			uri, err := amqp.ParseURI(cfg.URI())
			require.NoError(t, err)

			assert.Equal(t, "rabbit.internal", uri.Host)
			assert.Equal(t, 5673, uri.Port)
			assert.Equal(t, "video", uri.Username)
			assert.Equal(t, "p@ss:word/1", uri.Password)
			assert.Equal(t, tt.wantVhost, uri.Vhost)
		})
	}
}

func TestConfig_QueueArguments(t *testing.T) {
	cfg := &Config{QueueName: "video_jobs_queue"}
	assert.Nil(t, cfg.queueArguments())

	cfg.DeadLetterExchange = "video_jobs_dlx"
	assert.Equal(t, amqp.Table{"x-dead-letter-exchange": "video_jobs_dlx"}, cfg.queueArguments())
	assert.Equal(t, "video_jobs_queue.dead", cfg.DeadLetterQueue())
}
