package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeProductExtracted is published once per record that passed the gate
	EventTypeProductExtracted EventType = "PRODUCT_EXTRACTED"

	AggregateType = "catalog_product"
	DefaultStream = "stream:catalog_products"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// ProductExtractedPayload is the body of a PRODUCT_EXTRACTED event.
type ProductExtractedPayload struct {
	EventID   string                `json:"event_id"`
	EventType string                `json:"event_type"`
	Timestamp time.Time             `json:"timestamp"`
	RunID     string                `json:"run_id"`
	Product   *models.ProductRecord `json:"product"`
	Source    string                `json:"source"`
}

// Publisher appends one stream entry per record.
type Publisher struct {
	redis  RedisClient
	stream string
	runID  uuid.UUID
	now    func() time.Time
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string, runID uuid.UUID, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		runID:  runID,
		now:    time.Now,
		logger: logger.With("component", "event_publisher"),
	}
}

func (p *Publisher) Name() string { return "redis" }

// Write publishes every record in order and stops at the first failure.
func (p *Publisher) Write(ctx context.Context, records []*models.ProductRecord) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.publish(ctx, rec); err != nil {
			return err
		}
	}
	p.logger.Info("events published", "stream", p.stream, "count", len(records))
	return nil
}

func (p *Publisher) publish(ctx context.Context, rec *models.ProductRecord) error {
	now := p.now()
	eventID := uuid.New().String()
	aggregateID := rec.URL

	payload := ProductExtractedPayload{
		EventID:   eventID,
		EventType: string(EventTypeProductExtracted),
		Timestamp: now,
		RunID:     p.runID.String(),
		Product:   rec,
		Source:    "catalog-scraper",
	}

	// Create the stream data structure expected by consumers
	streamData := map[string]interface{}{
		"id":             eventID,
		"type":           payload.EventType,
		"aggregate_type": AggregateType,
		"aggregate_id":   aggregateID,
		"timestamp":      now.Format(time.RFC3339),
		"payload":        payload,
		"metadata": map[string]interface{}{
			"source":        payload.Source,
			"run_id":        payload.RunID,
			"target_stream": p.stream,
		},
	}

	dataJSON, err := json.Marshal(streamData)
	if err != nil {
		return fmt.Errorf("failed to marshal stream data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":           string(dataJSON),
			"type":           payload.EventType,
			"timestamp":      fmt.Sprintf("%d", now.UnixNano()),
			"original_id":    eventID,
			"aggregate_id":   aggregateID,
			"aggregate_type": AggregateType,
			"event_type":     payload.EventType,
		},
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published",
		"event_id", eventID,
		"stream_id", id,
		"aggregate_id", aggregateID)
	return nil
}
