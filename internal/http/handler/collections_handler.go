package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hector-minka/collections-bridge/internal/http/response"
	"github.com/hector-minka/collections-bridge/internal/observability"
	"github.com/hector-minka/collections-bridge/internal/repository"
	"github.com/hector-minka/collections-bridge/internal/service"
)

const (
	signalAnchorCreated  = "anchor-created"
	signalIntentUpdated  = "intent-updated"
	dedupeFallbackPrefix = "fp:"
)

// CollectionsHandler exposes the webhook ingestion endpoints and the
// collection read API. Webhooks acknowledge immediately and hand the event to
// the task runner so the ledger stops retrying; reconciliation failures after
// the ack are contained and logged, never surfaced upstream.
type CollectionsHandler struct {
	svc       *service.CollectionsService
	runner    *service.TaskRunner
	dedupe    service.EventDedupeStore
	archive   service.EvidenceArchive
	dedupeTTL time.Duration
	logger    *slog.Logger
}

func NewCollectionsHandler(
	svc *service.CollectionsService,
	runner *service.TaskRunner,
	dedupe service.EventDedupeStore,
	archive service.EvidenceArchive,
	dedupeTTL time.Duration,
	logger *slog.Logger,
) *CollectionsHandler {
	return &CollectionsHandler{
		svc:       svc,
		runner:    runner,
		dedupe:    dedupe,
		archive:   archive,
		dedupeTTL: dedupeTTL,
		logger:    logger.With("component", "collections_handler"),
	}
}

// AnchorCreatedWebhook accepts anchor_created events. Missing data.anchor is
// the only rejection; everything else is acknowledged with 200 and processed
// asynchronously.
func (h *CollectionsHandler) AnchorCreatedWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "unreadable body", nil)
		return
	}
	var event service.AnchorCreatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		observability.RecordWebhookEvent(r.Context(), signalAnchorCreated, "malformed")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid event payload", nil)
		return
	}
	if !event.HasAnchor() {
		h.logger.Warn("anchor-created webhook rejected: missing data.anchor")
		observability.RecordWebhookEvent(r.Context(), signalAnchorCreated, "rejected")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid event: missing data.anchor", nil)
		return
	}

	eventHandle := ""
	if event.Data != nil {
		eventHandle = event.Data.Handle
	}
	fingerprint := service.FingerprintPayload(body)
	key := dedupeKey(eventHandle, fingerprint)
	if h.alreadyProcessed(r.Context(), signalAnchorCreated, key, fingerprint) {
		observability.RecordWebhookEvent(r.Context(), signalAnchorCreated, "duplicate")
		writeAck(w, map[string]any{"received": true, "signal": signalAnchorCreated, "duplicate": true})
		return
	}

	h.logger.Info("anchor-created webhook accepted, processing async",
		"event", eventHandle)
	observability.RecordWebhookEvent(r.Context(), signalAnchorCreated, "accepted")

	h.archiveAsync(signalAnchorCreated, body)
	h.runner.Go("anchor-created", func(ctx context.Context) error {
		if _, err := h.svc.HandleAnchorCreated(ctx, &event); err != nil {
			return err
		}
		h.markProcessed(ctx, signalAnchorCreated, key, fingerprint)
		return nil
	})

	writeAck(w, map[string]any{"received": true, "signal": signalAnchorCreated})
}

// RTPFulfillmentWebhook accepts intent-updated events from the RTP network.
// Always acknowledges; processing runs detached with failures contained.
func (h *CollectionsHandler) RTPFulfillmentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "unreadable body", nil)
		return
	}
	var event service.IntentUpdatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// The network occasionally sends shapes we do not model; ack and log
		// rather than retrigger the webhook.
		h.logger.Warn("rtp-fulfillment webhook payload not decodable", "error", err)
		observability.RecordWebhookEvent(r.Context(), signalIntentUpdated, "malformed")
		writeAck(w, map[string]any{"success": true})
		return
	}

	eventHandle := ""
	if event.Data != nil {
		eventHandle = event.Data.Handle
	}
	fingerprint := service.FingerprintPayload(body)
	key := dedupeKey(eventHandle, fingerprint)
	if h.alreadyProcessed(r.Context(), signalIntentUpdated, key, fingerprint) {
		observability.RecordWebhookEvent(r.Context(), signalIntentUpdated, "duplicate")
		writeAck(w, map[string]any{"success": true})
		return
	}
	observability.RecordWebhookEvent(r.Context(), signalIntentUpdated, "accepted")

	meta := service.RequestMeta{
		Method: r.Method,
		Path:   r.URL.Path,
		IP:     clientIP(r),
	}
	h.archiveAsync(signalIntentUpdated, body)
	h.runner.Go("rtp-fulfillment", func(ctx context.Context) error {
		if err := h.svc.ProcessIntentUpdated(ctx, &event, meta); err != nil {
			return err
		}
		h.markProcessed(ctx, signalIntentUpdated, key, fingerprint)
		return nil
	})

	writeAck(w, map[string]any{"success": true})
}

func (h *CollectionsHandler) GetByMerchantTxID(w http.ResponseWriter, r *http.Request) {
	merchantTxID := chi.URLParam(r, "merchantTxId")
	collection, err := h.svc.GetCollectionByMerchantTxID(r.Context(), merchantTxID)
	if err != nil {
		h.renderLookupError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, collection)
}

func (h *CollectionsHandler) GetByAnchorHandle(w http.ResponseWriter, r *http.Request) {
	anchorHandle := chi.URLParam(r, "anchorHandle")
	collection, err := h.svc.GetCollectionByAnchorHandle(r.Context(), anchorHandle)
	if err != nil {
		h.renderLookupError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, collection)
}

func (h *CollectionsHandler) GetByIntentHandle(w http.ResponseWriter, r *http.Request) {
	intentHandle := chi.URLParam(r, "intentHandle")
	collection, err := h.svc.GetCollectionByIntentHandle(r.Context(), intentHandle)
	if err != nil {
		h.renderLookupError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, collection)
}

func (h *CollectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.CollectionListFilter{
		Status:       strings.TrimSpace(r.URL.Query().Get("status")),
		MerchantTxID: strings.TrimSpace(r.URL.Query().Get("merchantTxId")),
	}
	page := repository.PageRequest{
		Page:     intQueryParam(r, "page"),
		PageSize: intQueryParam(r, "page_size"),
	}
	result, err := h.svc.ListCollectionsPaged(r.Context(), filter, page)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list collections", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

func intQueryParam(r *http.Request, key string) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (h *CollectionsHandler) renderLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repository.ErrCollectionNotFound) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "collection not found", nil)
		return
	}
	response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load collection", nil)
}

func dedupeKey(eventHandle, fingerprint string) string {
	if eventHandle == "" {
		return dedupeFallbackPrefix + fingerprint
	}
	return eventHandle
}

// alreadyProcessed consults the dedupe store when configured. Only events
// whose reconciliation completed are recorded, so a suppressed redelivery is
// always one that already converged. Store failures never block ingestion.
func (h *CollectionsHandler) alreadyProcessed(ctx context.Context, signal, key, fingerprint string) bool {
	if h.dedupe == nil {
		return false
	}
	state, err := h.dedupe.Check(ctx, signal, key, fingerprint)
	if err != nil {
		h.logger.Warn("event dedupe check failed, dispatching anyway", "signal", signal, "error", err)
		return false
	}
	if state == service.EventDedupeStateSeen {
		h.logger.Info("duplicate webhook delivery suppressed", "signal", signal, "event", key)
		return true
	}
	return false
}

// markProcessed runs inside the detached task, after the reconciler returned
// success. A failed write only costs one redundant future dispatch.
func (h *CollectionsHandler) markProcessed(ctx context.Context, signal, key, fingerprint string) {
	if h.dedupe == nil {
		return
	}
	if err := h.dedupe.MarkProcessed(ctx, signal, key, fingerprint, h.dedupeTTL); err != nil {
		h.logger.Warn("recording processed event failed", "signal", signal, "error", err)
	}
}

func (h *CollectionsHandler) archiveAsync(signal string, body []byte) {
	if h.archive == nil {
		return
	}
	payload := append([]byte(nil), body...)
	h.runner.Go("archive-"+signal, func(ctx context.Context) error {
		_, err := h.archive.ArchiveEvent(ctx, signal, payload)
		return err
	})
}

func writeAck(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if i := strings.Index(ip, ","); i >= 0 {
			return strings.TrimSpace(ip[:i])
		}
		return ip
	}
	return r.RemoteAddr
}
