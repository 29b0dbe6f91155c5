// Package worker settles delivered jobs: it filters incomplete and
// duplicate deliveries and runs the download, convert and upload sequence.
package worker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/dedupe"
	"github.com/jDay-whyT/converterBot-backend/internal/entities"
)

type JobProcessor interface {
	Process(ctx context.Context, job entities.Job) error
}

type Service struct {
	processor JobProcessor
	seen      dedupe.Store
	logger    zerolog.Logger
}

func NewService(processor JobProcessor, seen dedupe.Store, logger zerolog.Logger) *Service {
	return &Service{processor: processor, seen: seen, logger: logger}
}

// Handle is safe to call for redeliveries. Keys are only marked after a
// successful run, so a failed job is retried by the source.
func (s *Service) Handle(ctx context.Context, job entities.Job) (entities.JobOutcome, error) {
	if !job.Complete() {
		s.logger.Warn().
			Str("file_id", job.FileID).
			Int64("chat_id", job.ChatID).
			Int64("message_id", job.MessageID).
			Msg("job is missing required fields")
		return entities.JobOutcome{Status: entities.OutcomeIgnored, Reason: "missing_fields"}, nil
	}

	key := job.IdempotencyKey()
	dup, err := s.seen.Seen(ctx, key)
	if err != nil {
		// a broken store must not stop conversions
		s.logger.Warn().Err(err).Str("key", key).Msg("dedupe lookup failed")
	}
	if dup {
		s.logger.Info().Str("key", key).Msg("duplicate job skipped")
		return entities.JobOutcome{Status: entities.OutcomeDuplicate, Key: key}, nil
	}

	if err := s.processor.Process(ctx, job); err != nil {
		return entities.JobOutcome{}, err
	}

	if err := s.seen.Mark(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to mark job as processed")
	}
	return entities.JobOutcome{Status: entities.OutcomeSuccess, Key: key}, nil
}
