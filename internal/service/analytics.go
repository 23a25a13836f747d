package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"campus-auth/internal/events"
	"campus-auth/internal/model"
	"campus-auth/internal/util"
)

// AnalyticsService answers aggregate and audit queries over the recorded
// event trail.
type AnalyticsService struct {
	recorder *events.Recorder
	logger   *zap.Logger
}

func NewAnalyticsService(recorder *events.Recorder, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{recorder: recorder, logger: logger}
}

// Stats returns per-event-type success and failure counts over the trailing
// window. Hours outside [1, 168] fall back to 24.
func (s *AnalyticsService) Stats(ctx context.Context, hours int) ([]events.TypeStats, error) {
	if s.recorder == nil {
		return nil, fmt.Errorf("%w: event recording disabled", ErrInternal)
	}
	if hours < 1 || hours > 168 {
		hours = 24
	}

	stats, err := s.recorder.Stats(ctx, time.Duration(hours)*time.Hour)
	if err != nil {
		s.logger.Error("failed to load auth stats", util.Int("hours", hours), util.ErrorField(err))
		return nil, fmt.Errorf("%w: failed to load auth stats", ErrInternal)
	}
	return stats, nil
}

// AuditEvents searches the recorded trail. An email filter is hashed before
// it reaches the search index.
func (s *AnalyticsService) AuditEvents(ctx context.Context, eventType, email string, since time.Time, limit int) ([]model.AuthEvent, error) {
	if s.recorder == nil {
		return nil, fmt.Errorf("%w: event recording disabled", ErrInternal)
	}

	filter := events.SearchFilter{
		EventType: eventType,
		Since:     since,
		Limit:     limit,
	}
	if email != "" {
		filter.EmailHash = util.HashEmail(email)
	}

	found, err := s.recorder.Search(ctx, filter)
	if err != nil {
		s.logger.Error("failed to search audit events", util.ErrorField(err))
		return nil, fmt.Errorf("%w: failed to search audit events", ErrInternal)
	}
	return found, nil
}
