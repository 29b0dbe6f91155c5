package r2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/config"
)

var (
	ErrQueueFull = errors.New("archive queue is full")
	ErrClosed    = errors.New("archive is closed")
)

type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type uploadReq struct {
	ctx     context.Context
	key     string
	payload []byte
}

// Archive copies converted JPEGs to an S3-compatible bucket in the
// background. Uploads are retried with jittered exponential backoff and
// dropped after MaxAttempts.
type Archive struct {
	Bucket         string
	Prefix         string
	MaxAttempts    int
	RetryBaseDelay time.Duration

	uploader uploader
	queue    chan uploadReq
	wg       sync.WaitGroup
	logger   zerolog.Logger

	// mu guards closed; senders hold it shared so Close never races a send.
	mu     sync.RWMutex
	closed bool
}

func NewArchive(ctx context.Context, cfg config.R2Config, logger zerolog.Logger) (*Archive, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretKey, "",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	a := newArchive(manager.NewUploader(client), cfg, logger)
	a.logger.Info().Str("bucket", a.Bucket).Int("workers", cfg.Workers).Msg("archive initialized")
	return a, nil
}

func newArchive(up uploader, cfg config.R2Config, logger zerolog.Logger) *Archive {
	workers := max(cfg.Workers, 1)
	a := &Archive{
		Bucket:         cfg.BucketName,
		Prefix:         cfg.Prefix,
		MaxAttempts:    max(cfg.MaxAttempts, 1),
		RetryBaseDelay: 300 * time.Millisecond,
		uploader:       up,
		queue:          make(chan uploadReq, max(cfg.QueueSize, 1)),
		logger:         logger.With().Str("component", "archive").Logger(),
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

// ObjectKey is where a converted file for the given job key is stored.
func (a *Archive) ObjectKey(jobKey, name string) string {
	return path.Join(a.Prefix, jobKey, name)
}

// Archive queues the upload without blocking and returns the object key.
func (a *Archive) Archive(ctx context.Context, jobKey, name string, data []byte) (string, error) {
	key := a.ObjectKey(jobKey, name)
	// the upload outlives the job that produced it
	req := uploadReq{ctx: context.WithoutCancel(ctx), key: key, payload: data}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return "", ErrClosed
	}
	select {
	case a.queue <- req:
		return key, nil
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", ErrQueueFull
	}
}

// Close stops accepting uploads and waits for the queued ones.
func (a *Archive) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Archive) worker() {
	defer a.wg.Done()
	for req := range a.queue {
		var err error
		for attempt := 1; attempt <= a.MaxAttempts; attempt++ {
			_, err = a.uploader.Upload(req.ctx, &s3.PutObjectInput{
				Bucket:      aws.String(a.Bucket),
				Key:         aws.String(req.key),
				Body:        bytes.NewReader(req.payload),
				ContentType: aws.String("image/jpeg"),
			})
			if err == nil || attempt == a.MaxAttempts {
				break
			}
			time.Sleep(a.backoffDelay(attempt))
		}
		if err != nil {
			a.logger.Error().Err(err).Str("object_key", req.key).Msg("archive upload failed")
			continue
		}
		a.logger.Debug().Str("object_key", req.key).Int("bytes", len(req.payload)).Msg("archived")
	}
}

func (a *Archive) backoffDelay(attempt int) time.Duration {
	delay := a.RetryBaseDelay << (attempt - 1)
	jitter := int64(delay) / 10
	if jitter <= 0 {
		return delay
	}
	return delay - time.Duration(jitter/2) + time.Duration(rand.Int64N(jitter))
}
