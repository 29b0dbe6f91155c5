// Package telegram talks to the Bot API on behalf of the worker: it fetches
// the uploaded document and posts the converted JPEG to the target topic.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/config"
)

const defaultBase = "https://api.telegram.org"

// ErrTooLarge is returned for documents above the download ceiling.
var ErrTooLarge = errors.New("telegram file exceeds size limit")

type Client struct {
	bot          *tgbotapi.BotAPI
	http         *http.Client
	token        string
	fileEndpoint string
	maxBytes     int64
	maxRetries   int
	logger       zerolog.Logger
}

// New connects to the Bot API; it fails when the token is rejected.
func New(cfg config.TelegramConfig, maxBytes int64, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	base := strings.TrimRight(cfg.APIEndpoint, "/")
	if base == "" {
		base = defaultBase
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, base+"/bot%s/%s", httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	return &Client{
		bot:          bot,
		http:         httpClient,
		token:        cfg.BotToken,
		fileEndpoint: base + "/file/bot%s/%s",
		maxBytes:     maxBytes,
		maxRetries:   2,
		logger:       logger,
	}, nil
}

// Download resolves fileID and returns the file body.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", fileID, err)
	}
	if c.maxBytes > 0 && int64(file.FileSize) > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, file.FileSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(c.fileEndpoint, c.token, file.FilePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	limit := c.maxBytes
	if limit <= 0 {
		limit = 1 << 62
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// SendDocument posts data as a document into chatID, inside the forum topic
// threadID when it is non-zero. Flood-control answers are retried after the
// delay Telegram asks for.
func (c *Client) SendDocument(ctx context.Context, chatID int64, threadID int, name string, data []byte) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_thread_id", threadID)
	files := []tgbotapi.RequestFile{{
		Name: "document",
		Data: tgbotapi.FileBytes{Name: name, Bytes: data},
	}}

	for attempt := 0; ; attempt++ {
		_, err := c.bot.UploadFiles("sendDocument", params, files)
		if err == nil {
			return nil
		}

		var apiErr *tgbotapi.Error
		if !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 || attempt >= c.maxRetries {
			return fmt.Errorf("send document: %w", err)
		}

		wait := time.Duration(apiErr.RetryAfter+1) * time.Second
		c.logger.Warn().
			Int("attempt", attempt+1).
			Int("max_retries", c.maxRetries).
			Dur("sleep", wait).
			Msg("telegram flood control, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
