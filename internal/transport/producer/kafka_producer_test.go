package producer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{sarama.ErrLeaderNotAvailable, "leader_not_available"},
		{sarama.ErrRequestTimedOut, "broker_timeout"},
		{sarama.ErrNotEnoughReplicas, "not_enough_replicas"},
		{sarama.ErrNotEnoughReplicasAfterAppend, "not_enough_replicas"},
		{timeoutErr{}, "net_timeout"},
		{fmt.Errorf("send: %w", timeoutErr{}), "net_timeout"},
		{context.DeadlineExceeded, "client_deadline"},
		{context.Canceled, "client_deadline"},
		{errors.New("something else"), "other"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyRetry(tt.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	t.Parallel()

	assert.True(t, isPermanent(sarama.ErrTopicAuthorizationFailed))
	assert.True(t, isPermanent(sarama.ErrMessageSizeTooLarge))
	assert.False(t, isPermanent(sarama.ErrLeaderNotAvailable))
	assert.False(t, isPermanent(sarama.ErrRequestTimedOut))
}
