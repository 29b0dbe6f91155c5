package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/config"
	"github.com/jDay-whyT/converterBot-backend/internal/convert"
	"github.com/jDay-whyT/converterBot-backend/internal/entities"
	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
	use_case "github.com/jDay-whyT/converterBot-backend/internal/use-case"
)

const apiKeyHeader = "X-API-KEY"

// multipartOverhead is allowed on top of the file ceiling for form fields
// and part headers.
const multipartOverhead = 1 << 20

type UseCase interface {
	Convert(ctx context.Context, req entities.ConversionRequest) (entities.ConversionOutcome, error)
}

type Handler struct {
	useCase UseCase
	cfg     *config.Config
	logger  zerolog.Logger
}

func New(useCase UseCase, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		useCase: useCase,
		cfg:     cfg,
		logger:  logger,
	}
}

func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RequireAPIKey rejects requests whose X-API-KEY does not match.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := h.cfg.Converter.APIKey
		if want == "" {
			writeJSONError(w, "converter API key is not configured", http.StatusInternalServerError)
			return
		}
		got := r.Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeJSONError(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	maxFile := h.cfg.Upload.MaxFileBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxFile+multipartOverhead)

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxMultipartMemoryMB << 20); err != nil {
		writeMultipartError(w, err, h.cfg.Upload.MaxFileMB)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, fh, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeJSONError(w, `missing file: form field key should be "file"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	params, err := h.parseParams(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxFile+1))
	if err != nil {
		writeJSONError(w, "failed to read upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	req := entities.ConversionRequest{
		Data:        data,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Params:      params,
	}

	start := time.Now()
	// A client disconnect must not kill a running tool; per-tool timeouts bound the work.
	out, err := h.useCase.Convert(context.WithoutCancel(r.Context()), req)
	event := h.requestLog(r, req, out, start)
	if err != nil {
		h.writeConvertError(w, r, event, err)
		return
	}

	event.Str("status", "ok").Int("out_bytes", len(out.JPEG)).Msg("conversion finished")

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="output.jpg"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.JPEG)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.JPEG)
}

func (h *Handler) parseParams(r *http.Request) (entities.ConversionParams, error) {
	params := entities.ConversionParams{Quality: h.cfg.Converter.DefaultQuality}

	if v := strings.TrimSpace(r.FormValue("quality")); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return params, errors.New("quality must be an integer")
		}
		params.Quality = q
	}
	if v := strings.TrimSpace(r.FormValue("max_side")); v != "" {
		side, err := strconv.Atoi(v)
		if err != nil {
			return params, errors.New("max_side must be an integer")
		}
		params.MaxSide = &side
	}
	return params, nil
}

func (h *Handler) requestLog(r *http.Request, req entities.ConversionRequest, out entities.ConversionOutcome, start time.Time) *zerolog.Event {
	ev := h.logger.Info().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("ext", strings.ToLower(filepath.Ext(req.Filename))).
		Int("in_bytes", len(req.Data)).
		Int("quality", req.Params.Quality).
		Str("route", out.Route.String()).
		Int64("elapsed_ms", time.Since(start).Milliseconds())
	if req.Params.MaxSide != nil {
		ev = ev.Int("max_side", *req.Params.MaxSide)
	}
	if out.Strategy != "" {
		ev = ev.Str("strategy", out.Strategy)
	}
	return ev
}

func (h *Handler) writeConvertError(w http.ResponseWriter, r *http.Request, event *zerolog.Event, err error) {
	var inErr *use_case.InputError
	var convErr *convert.Error

	switch {
	case errors.As(err, &inErr):
		event.Str("status", "rejected").Str("reason", inErr.Message).Msg("conversion rejected")
		writeJSONError(w, inErr.Message, inputStatus(inErr.Kind))

	case errors.As(err, &convErr):
		event.Str("status", "fail").Int("stages", len(convErr.Diagnostic)).Msg("conversion failed")
		writeJSONError(w, toolexec.Truncate(convErr.Error(), h.cfg.Converter.MaxStderrChars), http.StatusUnprocessableEntity)

	default:
		event.Discard()
		h.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("conversion error")
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
		writeJSONError(w, fmt.Sprintf("internal error: %v", err), http.StatusInternalServerError)
	}
}

func inputStatus(kind use_case.InputKind) int {
	switch kind {
	case use_case.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case use_case.KindUnprocessable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}
