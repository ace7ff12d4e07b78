package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"botops-console/internal/bucketing"
	"botops-console/internal/client"
	"botops-console/internal/models"
	"botops-console/internal/util"
)

const (
	recordTimeout = 10 * time.Second

	insertEventQuery = `
        INSERT INTO security_events
            (event_id, event_bucket, event_date, event_time, event_type,
             user_id, email, source_address, client_desc, details)`
)

// Recorder fans security events out to Kafka and ClickHouse. Recording is
// fire-and-forget: a sink failure is logged, never surfaced to the caller,
// so the auth path cannot stall on the activity log.
type Recorder struct {
	producer   *client.KafkaProducer
	clickhouse *client.ClickHouseClient
	bucketing  *bucketing.BucketingManager
	wg         sync.WaitGroup
}

func NewRecorder(producer *client.KafkaProducer, clickhouse *client.ClickHouseClient, bucketing *bucketing.BucketingManager) *Recorder {
	return &Recorder{
		producer:   producer,
		clickhouse: clickhouse,
		bucketing:  bucketing,
	}
}

// Record stamps and dispatches an event in the background.
func (r *Recorder) Record(event models.SecurityEvent) {
	now := time.Now().UTC()
	event.EventID = uuid.New().String()
	event.EventTime = now
	event.EventDate = r.bucketing.GetDateBucket(now)

	bucketKey := event.UserID
	if bucketKey == "" {
		bucketKey = event.SourceAddress
	}
	event.EventBucket = r.bucketing.GetEventBucket(bucketKey)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if err := r.dispatch(ctx, &event); err != nil {
			util.Warn("Failed to record security event",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}()
}

func (r *Recorder) dispatch(ctx context.Context, event *models.SecurityEvent) error {
	g, ctx := errgroup.WithContext(ctx)

	if r.producer != nil {
		g.Go(func() error {
			payload, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			return r.producer.Produce(ctx, []byte(event.EventType), payload, map[string]string{
				"event_id": event.EventID,
			})
		})
	}

	if r.clickhouse != nil {
		g.Go(func() error {
			return r.clickhouse.BatchInsert(ctx, insertEventQuery, [][]interface{}{{
				event.EventID, event.EventBucket, event.EventDate, event.EventTime,
				event.EventType, event.UserID, event.Email, event.SourceAddress,
				event.ClientDesc, event.Details,
			}})
		})
	}

	return g.Wait()
}

// Flush waits for in-flight event writes, bounded by the context.
func (r *Recorder) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
