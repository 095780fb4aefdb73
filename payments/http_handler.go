package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JoseSOto27/WNGL/common/middleware"
	"github.com/JoseSOto27/WNGL/payments/checkout"
	"github.com/JoseSOto27/WNGL/payments/webhook"
)

const (
	maxWebhookBytes  = int64(65536)
	maxCheckoutBytes = int64(1 << 20)
)

type PaymentHTTPHandler struct {
	service        PaymentService
	logger         *slog.Logger
	webhookTimeout time.Duration
	ping           func(context.Context) error
}

func NewPaymentHTTPHandler(service PaymentService, logger *slog.Logger, webhookTimeout time.Duration, ping func(context.Context) error) *PaymentHTTPHandler {
	return &PaymentHTTPHandler{
		service:        service,
		logger:         logger,
		webhookTimeout: webhookTimeout,
		ping:           ping,
	}
}

func (h *PaymentHTTPHandler) registerRoutes(router *http.ServeMux) {
	router.HandleFunc("POST /create_preference", h.handleCreatePreference)
	router.Handle("POST /webhook", middleware.Recover(h.logger, http.StatusOK, http.HandlerFunc(h.handleWebhook)))
	router.HandleFunc("GET /healthz", h.handleHealth)
	router.Handle("GET /metrics", promhttp.Handler())
}

func (h *PaymentHTTPHandler) handleCreatePreference(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCheckoutBytes)

	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.CreatePreference(r.Context(), req)
	if err != nil {
		var vErr *checkout.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		h.logger.Error("failed to create preference", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": res.PreferenceID})
}

// handleWebhook answers 200 on every path. The provider retries anything else,
// and reconciliation is idempotent, so there is nothing a non-200 would gain.
func (h *PaymentHTTPHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("failed to read webhook body", slog.Any("error", err))
	}

	n := webhook.Parse(r.URL.Query(), body)

	// The provider may hang up before we finish; the work should not stop with it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.webhookTimeout)
	defer cancel()

	h.service.HandleNotification(ctx, n)

	w.WriteHeader(http.StatusOK)
}

func (h *PaymentHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
