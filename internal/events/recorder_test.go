package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"campus-auth/internal/model"
)

func TestRecordWithNoSinksIsHarmless(t *testing.T) {
	r := NewRecorder(RecorderOptions{}, zap.NewNop())

	r.Record(context.Background(), &model.AuthEvent{
		EventID:   "e1",
		EventType: model.EventLogin,
		CreatedAt: time.Now().UTC(),
	})
	r.Record(context.Background(), nil)
}

func TestQueriesRequireSinks(t *testing.T) {
	r := NewRecorder(RecorderOptions{}, zap.NewNop())

	_, err := r.Stats(context.Background(), time.Hour)
	assert.Error(t, err)

	_, err = r.Search(context.Background(), SearchFilter{})
	assert.Error(t, err)
}

func TestRecorderDefaults(t *testing.T) {
	r := NewRecorder(RecorderOptions{}, zap.NewNop())
	assert.Equal(t, "auth_events", r.chTable)
	assert.Equal(t, "auth-events", r.esIndex)
	assert.Equal(t, 10*time.Second, r.timeout)
}
