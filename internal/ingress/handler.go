// Package ingress exposes the HTTP surface for submitting email.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AdewaleAdeniji/mailqueue"
)

const maxBodyBytes = 1 << 20

// Service accepts submissions. *app.App implements it.
type Service interface {
	Enqueue(ctx context.Context, payload mailqueue.Payload) (mailqueue.ID, error)
	Ready() bool
}

// EnqueueResponse is returned for an accepted submission.
type EnqueueResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

// Handler routes ingress requests.
type Handler struct {
	mux     *http.ServeMux
	service Service
	logger  mailqueue.Logger
}

// NewHandler builds the routes with permissive CORS applied.
func NewHandler(service Service, logger mailqueue.Logger) http.Handler {
	if service == nil {
		panic("ingress: nil service")
	}
	if logger == nil {
		logger = mailqueue.NopLogger{}
	}

	h := &Handler{mux: http.NewServeMux(), service: service, logger: logger}
	h.mux.HandleFunc("POST /send-email", h.handleSendEmail)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)

	return cors(h.mux)
}

func (h *Handler) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var payload mailqueue.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds 1 MiB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be a JSON object")
		return
	}

	id, err := h.service.Enqueue(r.Context(), payload)
	if err != nil {
		h.writeEnqueueError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EnqueueResponse{
		Message: "Email added to the queue",
		ID:      id.String(),
	})
}

func (h *Handler) writeEnqueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mailqueue.ErrRecipientRequired):
		writeError(w, http.StatusBadRequest, "recipient_required", "to is required")
	case errors.Is(err, mailqueue.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "not_ready", "queue is not ready yet")
	case errors.Is(err, mailqueue.ErrStoreUnavailable):
		h.logger.Error("mailqueue enqueue failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "queue storage is unavailable")
	default:
		h.logger.Error("mailqueue enqueue failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not enqueue email")
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Ready: h.service.Ready()})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
			if headers := r.Header.Get("Access-Control-Request-Headers"); headers != "" {
				w.Header().Set("Access-Control-Allow-Headers", headers)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
