package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jDay-whyT/converterBot-backend/internal/entities"
)

const (
	payloadField   = "payload"
	attemptField   = "attempt"
	notBeforeField = "not_before"
)

type Producer struct {
	r      func() redis.UniversalClient
	stream string
	maxLen int64
}

func NewProducer(r func() redis.UniversalClient, stream string, maxLen int64) *Producer {
	return &Producer{r: r, stream: stream, maxLen: maxLen}
}

// Enqueue appends the job to the stream and returns the entry id.
func (p *Producer) Enqueue(ctx context.Context, job entities.Job) (string, error) {
	return p.add(ctx, job, 0, time.Time{})
}

// add appends a job; a retried job carries the earliest time it may run.
func (p *Producer) add(ctx context.Context, job entities.Job, attempt int, notBefore time.Time) (string, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	values := map[string]any{
		payloadField: string(raw),
		attemptField: attempt,
	}
	if !notBefore.IsZero() {
		values[notBeforeField] = notBefore.UnixMilli()
	}
	return p.r().XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Result()
}
