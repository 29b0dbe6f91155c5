package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/config"
	"github.com/jDay-whyT/converterBot-backend/internal/entities"
)

type JobHandler interface {
	Handle(ctx context.Context, job entities.Job) (entities.JobOutcome, error)
}

// Worker consumes jobs from the stream through a consumer group. Failed
// jobs are re-added with an incremented attempt and a not_before stamp
// before the original entry is acked, and dropped once MaxAttempts is
// reached. Entries interrupted by shutdown stay pending.
type Worker struct {
	rc       func() redis.UniversalClient
	cfg      config.QueueConfig
	jobs     JobHandler
	producer *Producer
	logger   zerolog.Logger
}

func NewWorker(rc func() redis.UniversalClient, cfg config.QueueConfig, jobs JobHandler, logger zerolog.Logger) *Worker {
	if cfg.Consumer == "" {
		host, _ := os.Hostname()
		cfg.Consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return &Worker{
		rc:       rc,
		cfg:      cfg,
		jobs:     jobs,
		producer: NewProducer(rc, cfg.Stream, cfg.MaxLen),
		logger:   logger.With().Str("component", "queue").Str("consumer", cfg.Consumer).Logger(),
	}
}

func (w *Worker) EnsureGroup(ctx context.Context) error {
	// MKSTREAM lets the group exist before the first entry is added.
	err := w.rc().XGroupCreateMkStream(ctx, w.cfg.Stream, w.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Start blocks until ctx is done or a consumer loop fails. It returns only
// after every consumer goroutine has finished its current entry.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to ensure redis group: %w", err)
	}

	w.logger.Info().
		Str("group", w.cfg.Group).
		Str("stream", w.cfg.Stream).
		Int("workers", max(w.cfg.Workers, 1)).
		Msg("starting consumer group")

	w.autoClaim(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := max(w.cfg.Workers, 1)
	errCh := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- w.loop(ctx)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		w.logger.Info().Msg("context canceled, stopping consumers")
	case err = <-errCh:
		cancel()
	}
	wg.Wait()

	if err != nil {
		return fmt.Errorf("consumer loop exited with error: %w", err)
	}
	return nil
}

// autoClaim takes ownership of entries that another consumer read but never
// acknowledged, typically because it crashed mid-job, and processes them.
func (w *Worker) autoClaim(ctx context.Context) {
	minIdle := w.cfg.ClaimIdle()
	if minIdle <= 0 {
		minIdle = 30 * time.Second
	}

	next := "0-0"
	for {
		msgs, start, err := w.rc().XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   w.cfg.Stream,
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			MinIdle:  minIdle,
			Start:    next,
			Count:    100,
		}).Result()
		if err != nil {
			w.logger.Warn().Err(err).Msg("auto-claim failed")
			return
		}
		for _, m := range msgs {
			w.handle(ctx, m)
		}
		if start == "0-0" || len(msgs) == 0 {
			return
		}
		next = start
	}
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		// Entries read with ">" stay pending until XACK in handle.
		streams, err := w.rc().XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			Streams:  []string{w.cfg.Stream, ">"},
			Count:    1,
			Block:    w.cfg.BlockTimeout(),
		}).Result()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				w.logger.Warn().Err(err).Msg("read group failed")
				time.Sleep(time.Second)
			}
			continue
		}
		for _, s := range streams {
			for _, m := range s.Messages {
				w.handle(ctx, m)
			}
		}
	}
}

type disposition int

const (
	// settleAck acknowledges the entry.
	settleAck disposition = iota
	// settleRequeue re-adds the job with the next attempt, then acks.
	settleRequeue
	// settleDrop acks a job that ran out of attempts.
	settleDrop
	// settleKeepPending leaves the entry for XAUTOCLAIM after a restart.
	settleKeepPending
)

func settle(err error, stopping bool, attempt, maxAttempts int) disposition {
	switch {
	case err == nil:
		return settleAck
	case stopping:
		return settleKeepPending
	case attempt+1 >= maxAttempts:
		return settleDrop
	default:
		return settleRequeue
	}
}

func (w *Worker) handle(ctx context.Context, m redis.XMessage) {
	log := w.logger.With().Str("entry_id", m.ID).Logger()

	e, err := decodeEntry(m.Values)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed entry")
		w.ack(ctx, log, m.ID)
		return
	}

	if wait := time.Until(e.notBefore); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	outcome, err := w.jobs.Handle(ctx, e.job)
	switch settle(err, ctx.Err() != nil, e.attempt, w.cfg.MaxAttempts) {
	case settleAck:
		log.Info().Str("status", outcome.Status).Str("reason", outcome.Reason).Str("key", outcome.Key).Msg("entry settled")
		w.ack(ctx, log, m.ID)

	case settleKeepPending:
		log.Warn().Err(err).Msg("interrupted by shutdown, leaving entry pending")

	case settleDrop:
		log.Error().Err(err).Int("attempt", e.attempt).Msg("giving up on job")
		sentry.CaptureException(fmt.Errorf("job %s dropped after %d attempts: %w", e.job.IdempotencyKey(), e.attempt+1, err))
		w.ack(ctx, log, m.ID)

	case settleRequeue:
		backoff := w.cfg.BackoffBase() << e.attempt
		log.Warn().Err(err).Int("attempt", e.attempt).Dur("backoff", backoff).Msg("job failed, requeueing")
		if _, rerr := w.producer.add(context.WithoutCancel(ctx), e.job, e.attempt+1, time.Now().Add(backoff)); rerr != nil {
			log.Error().Err(rerr).Msg("requeue failed, leaving entry pending")
			return
		}
		w.ack(ctx, log, m.ID)
	}
}

func (w *Worker) ack(ctx context.Context, log zerolog.Logger, id string) {
	if err := w.rc().XAck(context.WithoutCancel(ctx), w.cfg.Stream, w.cfg.Group, id).Err(); err != nil {
		log.Warn().Err(err).Msg("ack failed")
	}
}

type entry struct {
	job       entities.Job
	attempt   int
	notBefore time.Time
}

func decodeEntry(values map[string]any) (entry, error) {
	var e entry
	raw, ok := values[payloadField].(string)
	if !ok {
		return e, errors.New("entry has no payload")
	}
	if err := json.Unmarshal([]byte(raw), &e.job); err != nil {
		return e, fmt.Errorf("decode payload: %w", err)
	}
	e.attempt = toInt(values[attemptField])
	if ms := toInt(values[notBeforeField]); ms > 0 {
		e.notBefore = time.UnixMilli(int64(ms))
	}
	return e, nil
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}
