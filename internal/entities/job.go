package entities

import (
	"fmt"
	"time"
)

// Job is the payload published for every document the bot receives. It
// arrives base64-encoded in a Pub/Sub push envelope or as a stream entry.
type Job struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id,omitempty"`
	ChatID       int64  `json:"chat_id"`
	MessageID    int64  `json:"message_id"`
	FileName     string `json:"file_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
}

// Complete reports whether the fields needed to process the job are set.
func (j Job) Complete() bool {
	return j.FileID != "" && j.ChatID != 0 && j.MessageID != 0
}

// IdempotencyKey identifies the source document across redeliveries.
func (j Job) IdempotencyKey() string {
	if j.FileUniqueID != "" {
		return j.FileUniqueID
	}
	return fmt.Sprintf("%d:%d", j.ChatID, j.MessageID)
}

// DisplayName falls back to the file id when the document had no name.
func (j Job) DisplayName() string {
	if j.FileName != "" {
		return j.FileName
	}
	return j.FileID
}

type JobStatus string

const (
	JobStarted   JobStatus = "started"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobRecord is a row of the conversion_jobs ledger.
type JobRecord struct {
	ID             int64     `json:"id"`
	IdempotencyKey string    `json:"idempotency_key"`
	FileID         string    `json:"file_id"`
	ChatID         int64     `json:"chat_id"`
	MessageID      int64     `json:"message_id"`
	FileName       string    `json:"file_name"`
	Status         JobStatus `json:"status"`
	InBytes        int64     `json:"in_bytes"`
	OutBytes       int64     `json:"out_bytes"`
	DownloadMS     int64     `json:"download_ms"`
	ConvertMS      int64     `json:"convert_ms"`
	UploadMS       int64     `json:"upload_ms"`
	TotalMS        int64     `json:"total_ms"`
	ArchiveKey     *string   `json:"archive_key,omitempty"`
	Error          *string   `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// JobOutcome is how a delivered job was settled.
type JobOutcome struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Key    string `json:"key,omitempty"`
}

const (
	OutcomeSuccess   = "success"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)
