package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/entities"
)

type JobHandler interface {
	Handle(ctx context.Context, job entities.Job) (entities.JobOutcome, error)
}

// PushHandler receives Pub/Sub push deliveries. A non-2xx answer makes
// Pub/Sub redeliver, so only processing failures return 5xx.
type PushHandler struct {
	jobs   JobHandler
	logger zerolog.Logger
}

func NewPush(jobs JobHandler, logger zerolog.Logger) *PushHandler {
	return &PushHandler{jobs: jobs, logger: logger}
}

func (h *PushHandler) Push(w http.ResponseWriter, r *http.Request) {
	var env pushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		h.logger.Warn().Err(err).Msg("failed to parse push body")
		writeJSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if env.Message.Data == "" {
		h.logger.Warn().Str("message_id", env.Message.MessageID).Msg("no data in push message")
		writeJSON(w, http.StatusOK, entities.JobOutcome{Status: entities.OutcomeIgnored, Reason: "no_data"})
		return
	}

	job, err := decodeJob(env.Message.Data)
	if err != nil {
		h.logger.Warn().Err(err).Str("message_id", env.Message.MessageID).Msg("failed to decode job data")
		writeJSONError(w, "invalid job data", http.StatusBadRequest)
		return
	}

	outcome, err := h.jobs.Handle(r.Context(), job)
	if err != nil {
		sentry.CaptureException(err)
		writeJSONError(w, "processing failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func decodeJob(data string) (entities.Job, error) {
	var job entities.Job
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return job, err
	}
	err = json.Unmarshal(raw, &job)
	return job, err
}
