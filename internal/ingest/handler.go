package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/possync/internal/platform/httpx"
)

const syncFailedMessage = "failed to sync record"

// HandlerConfig bounds request sizes and the per-IP sync rate.
type HandlerConfig struct {
	BatchMax     int
	MaxBodyBytes int64
	RateLimit    int
}

// Handler exposes the sync and review endpoints of every kind.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	batchMax  int
	maxBody   int64
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the sync handler.
func NewHandler(logger *slog.Logger, service *Service, cfg HandlerConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 500
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4 << 20
	}
	limiter := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimit > 0 {
		limiter = httprate.Limit(cfg.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Fail(w, http.StatusTooManyRequests, "too many sync requests, retry later")
			}),
		)
	}
	return &Handler{
		logger:    logger,
		service:   service,
		batchMax:  cfg.BatchMax,
		maxBody:   cfg.MaxBodyBytes,
		rateLimit: limiter,
	}
}

// MountRoutes registers the routes under the router it is given, normally /api/sync.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{kind}", func(r chi.Router) {
		r.With(h.rateLimit).Post("/", h.handleSync)
		r.Get("/pending-review", h.handlePendingReview)
		r.Post("/{globalId}/approve", h.handleApprove)
		r.Post("/{globalId}/reject", h.handleReject)
	})
}

type batchResult struct {
	Success      bool        `json:"success"`
	GlobalID     string      `json:"globalId,omitempty"`
	Record       *RecordView `json:"record,omitempty"`
	Deduplicated *bool       `json:"deduplicated,omitempty"`
	Message      string      `json:"message,omitempty"`
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.policy(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Fail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		httpx.Fail(w, http.StatusBadRequest, "unable to read request body")
		return
	}
	subs, isBatch, err := DecodeSubmissions(body)
	if err != nil {
		if errors.Is(err, ErrEmptyBatch) {
			httpx.Fail(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isBatch {
		res, err := h.service.Submit(r.Context(), policy, subs[0])
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.OK(w, map[string]any{
			"record":       FromRecord(res.Record),
			"deduplicated": res.Deduplicated,
		})
		return
	}

	if len(subs) > h.batchMax {
		httpx.Fail(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds %d records", h.batchMax))
		return
	}
	items := h.service.SubmitBatch(r.Context(), policy, subs)
	results := make([]batchResult, len(items))
	for i, item := range items {
		if item.Err != nil {
			results[i] = batchResult{GlobalID: string(subs[i].GlobalID), Message: clientMessage(item.Err)}
			continue
		}
		view := FromRecord(item.Result.Record)
		dedup := item.Result.Deduplicated
		results[i] = batchResult{Success: true, GlobalID: view.GlobalID, Record: &view, Deduplicated: &dedup}
	}
	httpx.OK(w, map[string]any{
		"message": fmt.Sprintf("%d/%d records synced", Accepted(items), len(items)),
		"results": results,
	})
}

func (h *Handler) handlePendingReview(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.policy(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	scope, err := scopeFrom(q.Get("tenantId"), q.Get("branchId"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	records, err := h.service.PendingReview(r.Context(), policy.Kind, scope, q.Get("employeeId"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"records": FromRecords(records),
		"count":   len(records),
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, h.service.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, h.service.Reject)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request, apply func(context.Context, Kind, string, ReviewRequest) (Record, error)) {
	policy, ok := h.policy(w, r)
	if !ok {
		return
	}
	var req ReviewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	record, err := apply(r.Context(), policy.Kind, chi.URLParam(r, "globalId"), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"record": FromRecord(record)})
}

func (h *Handler) policy(w http.ResponseWriter, r *http.Request) (KindPolicy, bool) {
	policy, ok := PolicyFor(chi.URLParam(r, "kind"))
	if !ok {
		httpx.Fail(w, http.StatusNotFound, "unknown sync kind")
		return KindPolicy{}, false
	}
	return policy, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case IsClientError(err):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRecordNotFound):
		httpx.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrReviewConflict):
		httpx.Fail(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("sync request failed", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, syncFailedMessage)
	}
}

// clientMessage is the per-item message of a batch result.
func clientMessage(err error) string {
	if IsClientError(err) {
		return err.Error()
	}
	return syncFailedMessage
}
