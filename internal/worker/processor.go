package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/entities"
)

type Telegram interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
	SendDocument(ctx context.Context, chatID int64, threadID int, name string, data []byte) error
}

type Converter interface {
	Convert(ctx context.Context, filename string, data []byte, quality int) ([]byte, error)
}

// Archiver keeps a copy of every converted JPEG. Archive must not block on
// the upload itself.
type Archiver interface {
	Archive(ctx context.Context, key, name string, data []byte) (string, error)
}

// Ledger records each processed job. Start returns the row id passed back
// to Finish.
type Ledger interface {
	Start(ctx context.Context, job entities.Job) (int64, error)
	Finish(ctx context.Context, rec entities.JobRecord) error
}

type Target struct {
	ChatID  int64
	TopicID int
	Quality int

	// ConversionTimeout bounds the converter call only.
	ConversionTimeout time.Duration
}

type Processor struct {
	tg       Telegram
	conv     Converter
	target   Target
	archiver Archiver
	ledger   Ledger
	logger   zerolog.Logger
}

type Option func(*Processor)

func WithArchiver(a Archiver) Option { return func(p *Processor) { p.archiver = a } }

func WithLedger(l Ledger) Option { return func(p *Processor) { p.ledger = l } }

func NewProcessor(tg Telegram, conv Converter, target Target, logger zerolog.Logger, opts ...Option) *Processor {
	p := &Processor{tg: tg, conv: conv, target: target, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OutputName is the converted document name: the source stem with a .jpg
// suffix.
func OutputName(sourceName string) string {
	base := filepath.Base(sourceName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "converted"
	}
	return stem + ".jpg"
}

// Process downloads the document, converts it and posts the JPEG to the
// converted topic.
func (p *Processor) Process(ctx context.Context, job entities.Job) error {
	requestID := uuid.NewString()
	log := p.logger.With().
		Str("request_id", requestID).
		Str("key", job.IdempotencyKey()).
		Str("file_name", job.DisplayName()).
		Logger()

	rec := entities.JobRecord{
		IdempotencyKey: job.IdempotencyKey(),
		FileID:         job.FileID,
		ChatID:         job.ChatID,
		MessageID:      job.MessageID,
		FileName:       job.DisplayName(),
		Status:         entities.JobStarted,
	}
	if p.ledger != nil {
		id, err := p.ledger.Start(ctx, job)
		if err != nil {
			log.Warn().Err(err).Msg("ledger start failed")
		}
		rec.ID = id
	}

	err := p.run(ctx, job, &rec)
	p.finish(ctx, log, &rec, err)
	return err
}

func (p *Processor) run(ctx context.Context, job entities.Job, rec *entities.JobRecord) error {
	total := time.Now()
	defer func() { rec.TotalMS = time.Since(total).Milliseconds() }()

	start := time.Now()
	data, err := p.tg.Download(ctx, job.FileID)
	rec.DownloadMS = time.Since(start).Milliseconds()
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	rec.InBytes = int64(len(data))

	convCtx := ctx
	if p.target.ConversionTimeout > 0 {
		var cancel context.CancelFunc
		convCtx, cancel = context.WithTimeout(ctx, p.target.ConversionTimeout)
		defer cancel()
	}
	start = time.Now()
	jpeg, err := p.conv.Convert(convCtx, job.DisplayName(), data, p.target.Quality)
	rec.ConvertMS = time.Since(start).Milliseconds()
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	rec.OutBytes = int64(len(jpeg))

	name := OutputName(job.DisplayName())
	start = time.Now()
	err = p.tg.SendDocument(ctx, p.target.ChatID, p.target.TopicID, name, jpeg)
	rec.UploadMS = time.Since(start).Milliseconds()
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	if p.archiver != nil {
		key, err := p.archiver.Archive(ctx, job.IdempotencyKey(), name, jpeg)
		if err != nil {
			p.logger.Warn().Err(err).Str("key", job.IdempotencyKey()).Msg("archive skipped")
		} else {
			rec.ArchiveKey = &key
		}
	}
	return nil
}

func (p *Processor) finish(ctx context.Context, log zerolog.Logger, rec *entities.JobRecord, err error) {
	ev := log.Info()
	msg := "job_success"
	rec.Status = entities.JobSucceeded
	if err != nil {
		ev = log.Error().Err(err)
		msg = "job_failed"
		rec.Status = entities.JobFailed
		reason := err.Error()
		rec.Error = &reason
	}
	ev.Int64("in_bytes", rec.InBytes).
		Int64("out_bytes", rec.OutBytes).
		Int64("tg_download_ms", rec.DownloadMS).
		Int64("convert_ms", rec.ConvertMS).
		Int64("tg_upload_ms", rec.UploadMS).
		Int64("total_ms", rec.TotalMS).
		Msg(msg)

	if p.ledger != nil && rec.ID != 0 {
		if lerr := p.ledger.Finish(context.WithoutCancel(ctx), *rec); lerr != nil {
			log.Warn().Err(lerr).Msg("ledger finish failed")
		}
	}
}
