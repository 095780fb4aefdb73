package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JoseSOto27/WNGL/common/api"
	"github.com/JoseSOto27/WNGL/common/pricing"
	"github.com/JoseSOto27/WNGL/common/store"
)

const maxBodyBytes = int64(1 << 20)

type OrdersHTTPHandler struct {
	service OrdersService
	logger  *slog.Logger
	ping    func(context.Context) error
}

func NewOrdersHTTPHandler(service OrdersService, logger *slog.Logger, ping func(context.Context) error) *OrdersHTTPHandler {
	return &OrdersHTTPHandler{
		service: service,
		logger:  logger,
		ping:    ping,
	}
}

func (h *OrdersHTTPHandler) registerRoutes(router *http.ServeMux) {
	router.HandleFunc("POST /api/orders/cash", h.handlePlaceCashOrder)
	router.HandleFunc("GET /api/orders", h.handleListOrders)
	router.HandleFunc("PATCH /api/orders/{orderID}/status", h.handleUpdateStatus)
	router.HandleFunc("GET /api/dashboard/stats", h.handleDashboardStats)
	router.HandleFunc("GET /api/customers/{customerID}/orders", h.handleCustomerOrders)
	router.HandleFunc("GET /api/customers/{customerID}/addresses", h.handleListAddresses)
	router.HandleFunc("POST /api/customers/{customerID}/addresses", h.handleAddAddress)
	router.HandleFunc("DELETE /api/customers/{customerID}/addresses/{addressID}", h.handleRemoveAddress)
	router.HandleFunc("GET /api/profiles/{customerID}/points", h.handlePoints)
	router.HandleFunc("GET /api/menu", h.handleMenu)
	router.HandleFunc("GET /healthz", h.handleHealth)
	router.Handle("GET /metrics", promhttp.Handler())
}

func (h *OrdersHTTPHandler) handlePlaceCashOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req CashOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.PlaceCashOrder(r.Context(), req)
	if err != nil {
		h.fail(w, "failed to place cash order", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrdersHTTPHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), r.URL.Query().Get("estado"))
	if err != nil {
		h.fail(w, "failed to list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrdersHTTPHandler) handleCustomerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.CustomerOrders(r.Context(), r.PathValue("customerID"))
	if err != nil {
		h.fail(w, "failed to list customer orders", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrdersHTTPHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("orderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body struct {
		Status string `json:"estado"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), id, body.Status); err != nil {
		h.fail(w, "failed to update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "estado": body.Status})
}

func (h *OrdersHTTPHandler) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		h.fail(w, "failed to load dashboard stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *OrdersHTTPHandler) handlePoints(w http.ResponseWriter, r *http.Request) {
	points, err := h.service.Points(r.Context(), r.PathValue("customerID"))
	if err != nil {
		h.fail(w, "failed to read points", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"points": points})
}

func (h *OrdersHTTPHandler) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.service.Addresses(r.Context(), r.PathValue("customerID"))
	if err != nil {
		h.fail(w, "failed to list addresses", err)
		return
	}
	writeJSON(w, http.StatusOK, addresses)
}

func (h *OrdersHTTPHandler) handleAddAddress(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var a api.Address
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a.UserID = r.PathValue("customerID")

	if err := h.service.AddAddress(r.Context(), &a); err != nil {
		h.fail(w, "failed to add address", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *OrdersHTTPHandler) handleRemoveAddress(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("addressID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address id")
		return
	}

	if err := h.service.RemoveAddress(r.Context(), r.PathValue("customerID"), id); err != nil {
		h.fail(w, "failed to remove address", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHTTPHandler) handleMenu(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Menu(r.Context())
	if err != nil {
		h.fail(w, "failed to load menu", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *OrdersHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
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

// fail maps service errors: validation is 400, a missing row is 404, anything
// else is logged and answered 500.
func (h *OrdersHTTPHandler) fail(w http.ResponseWriter, msg string, err error) {
	var vErr *pricing.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, store.ErrProfileNotFound),
		errors.Is(err, store.ErrAddressNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error(msg, slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
