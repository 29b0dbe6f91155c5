// Package converterclient posts documents to the converter service.
package converterclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
)

const maxErrorBody = 2048

// ErrResultTooLarge is returned instead of a truncated JPEG.
var ErrResultTooLarge = errors.New("conversion output exceeds size limit")

// StatusError is a non-200 answer from the converter.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("converter returned %d: %s", e.Code, e.Body)
}

type Client struct {
	url       string
	apiKey    string
	http      *http.Client
	minResult int
	maxResult int64
}

func New(url, apiKey string, httpClient *http.Client, minResult int, maxResult int64) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, apiKey: apiKey, http: httpClient, minResult: minResult, maxResult: maxResult}
}

// Convert uploads data as filename and returns the JPEG bytes.
func (c *Client) Convert(ctx context.Context, filename string, data []byte, quality int) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.WriteField("quality", strconv.Itoa(quality)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("converter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(preview)}
	}

	reader := io.Reader(resp.Body)
	if c.maxResult > 0 {
		reader = io.LimitReader(resp.Body, c.maxResult+1)
	}
	jpeg, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read converter response: %w", err)
	}
	if c.maxResult > 0 && int64(len(jpeg)) > c.maxResult {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResultTooLarge, c.maxResult)
	}
	if len(jpeg) < c.minResult {
		return nil, fmt.Errorf("invalid conversion output: %d bytes", len(jpeg))
	}
	return jpeg, nil
}
