package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"campus-auth/internal/client"
	"campus-auth/internal/model"
	"campus-auth/internal/util"
)

// Recorder fans authentication events out to the configured sinks: a kafka
// topic for downstream consumers, clickhouse for aggregate analytics, and
// elasticsearch for audit search. Any sink may be nil; a sink failure is
// logged and never surfaces to the auth flow.
type Recorder struct {
	kafka   *client.KafkaProducer
	ch      *client.ClickHouseClient
	es      *client.ESClient
	chTable string
	esIndex string
	timeout time.Duration
	logger  *zap.Logger
}

type RecorderOptions struct {
	Kafka           *client.KafkaProducer
	ClickHouse      *client.ClickHouseClient
	Elasticsearch   *client.ESClient
	ClickHouseTable string
	ESIndex         string
	Timeout         time.Duration
}

func NewRecorder(opts RecorderOptions, logger *zap.Logger) *Recorder {
	if opts.ClickHouseTable == "" {
		opts.ClickHouseTable = "auth_events"
	}
	if opts.ESIndex == "" {
		opts.ESIndex = "auth-events"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Recorder{
		kafka:   opts.Kafka,
		ch:      opts.ClickHouse,
		es:      opts.Elasticsearch,
		chTable: opts.ClickHouseTable,
		esIndex: opts.ESIndex,
		timeout: opts.Timeout,
		logger:  logger,
	}
}

// EnsureSchema creates the clickhouse event table if it does not exist yet.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if r.ch == nil {
		return nil
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			event_id    String,
			event_type  LowCardinality(String),
			user_id     String,
			email_hash  String,
			success     UInt8,
			reason      String,
			remote_addr String,
			created_at  DateTime64(3, 'UTC')
		) ENGINE = MergeTree()
		ORDER BY (event_type, created_at)
		TTL toDateTime(created_at) + INTERVAL 90 DAY`, r.chTable)
	if err := r.ch.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create event table: %w", err)
	}
	return nil
}

// Record ships the event to every sink. The write happens on a background
// goroutine with its own deadline, detached from the request context.
func (r *Recorder) Record(ctx context.Context, event *model.AuthEvent) {
	if event == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)
		if r.kafka != nil {
			g.Go(func() error { return r.publishKafka(ctx, event) })
		}
		if r.ch != nil {
			g.Go(func() error { return r.insertClickHouse(ctx, event) })
		}
		if r.es != nil {
			g.Go(func() error { return r.indexES(ctx, event) })
		}

		if err := g.Wait(); err != nil {
			r.logger.Warn("event sink write failed",
				util.String("event_id", event.EventID),
				util.String("event_type", event.EventType),
				util.ErrorField(err))
		}
	}()
}

func (r *Recorder) publishKafka(ctx context.Context, event *model.AuthEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.kafka.Publish(ctx, []byte(event.EmailHash), payload)
}

func (r *Recorder) insertClickHouse(ctx context.Context, event *model.AuthEvent) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (event_id, event_type, user_id, email_hash, success, reason, remote_addr, created_at)",
		r.chTable)
	success := uint8(0)
	if event.Success {
		success = 1
	}
	return r.ch.BatchInsert(ctx, query, [][]interface{}{{
		event.EventID,
		event.EventType,
		event.UserID,
		event.EmailHash,
		success,
		event.Reason,
		event.RemoteAddr,
		event.CreatedAt,
	}})
}

func (r *Recorder) indexES(ctx context.Context, event *model.AuthEvent) error {
	return r.es.IndexDocument(ctx, r.esIndex, event.EventID, event)
}

// TypeStats aggregates outcomes for one event type.
type TypeStats struct {
	EventType   string  `json:"event_type"`
	Total       uint64  `json:"total"`
	Successes   uint64  `json:"successes"`
	Failures    uint64  `json:"failures"`
	SuccessRate float64 `json:"success_rate"`
}

// Stats returns per-type counts over the trailing window, read from
// clickhouse.
func (r *Recorder) Stats(ctx context.Context, window time.Duration) ([]TypeStats, error) {
	if r.ch == nil {
		return nil, fmt.Errorf("clickhouse sink not configured")
	}

	query := fmt.Sprintf(`
		SELECT event_type, count() AS total, countIf(success = 1) AS successes
		FROM %s
		WHERE created_at >= now() - INTERVAL ? SECOND
		GROUP BY event_type
		ORDER BY event_type`, r.chTable)

	rows, err := r.ch.QueryRows(ctx, query, int64(window.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to query event stats: %w", err)
	}
	defer rows.Close()

	var stats []TypeStats
	for rows.Next() {
		var s TypeStats
		if err := rows.Scan(&s.EventType, &s.Total, &s.Successes); err != nil {
			return nil, fmt.Errorf("failed to scan event stats row: %w", err)
		}
		s.Failures = s.Total - s.Successes
		if s.Total > 0 {
			s.SuccessRate = float64(s.Successes) / float64(s.Total)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// SearchFilter narrows an audit search. Zero values match everything.
type SearchFilter struct {
	EventType string
	EmailHash string
	Since     time.Time
	Limit     int
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Source model.AuthEvent `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns matching audit events from elasticsearch, newest first.
func (r *Recorder) Search(ctx context.Context, filter SearchFilter) ([]model.AuthEvent, error) {
	if r.es == nil {
		return nil, fmt.Errorf("elasticsearch sink not configured")
	}

	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	must := []map[string]interface{}{}
	if filter.EventType != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"event_type.keyword": filter.EventType},
		})
	}
	if filter.EmailHash != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"email_hash.keyword": filter.EmailHash},
		})
	}
	if !filter.Since.IsZero() {
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{
				"created_at": map[string]interface{}{"gte": filter.Since.Format(time.RFC3339)},
			},
		})
	}

	query := map[string]interface{}{
		"size": filter.Limit,
		"sort": []map[string]interface{}{
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
	}

	var resp esSearchResponse
	if err := r.es.Search(ctx, r.esIndex, query, &resp); err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}

	events := make([]model.AuthEvent, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		events = append(events, hit.Source)
	}
	return events, nil
}
