package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/readingattendance/readingd/internal/application"
	"github.com/readingattendance/readingd/internal/paystack"
)

const maxWebhookBody = 1 << 20

type paymentService interface {
	CreatePayment(ctx context.Context, principal application.Principal, params application.CreatePaymentParams) (application.CreatePaymentResult, error)
	VerifyPayment(ctx context.Context, principal application.Principal, reference string) (application.VerifyPaymentResult, error)
	HandleChargeSuccess(ctx context.Context, event application.ChargeEvent) error
}

// PaymentHandler serves checkout, verification and the provider webhook.
type PaymentHandler struct {
	service       paymentService
	webhookSecret string
	responder     responder
	logger        *slog.Logger
}

// NewPaymentHandler builds a PaymentHandler. webhookSecret is the key the
// provider signs webhook bodies with.
func NewPaymentHandler(service paymentService, webhookSecret string, logger *slog.Logger) *PaymentHandler {
	base := defaultLogger(logger)
	return &PaymentHandler{service: service, webhookSecret: webhookSecret, responder: newResponder(base), logger: base}
}

func (h *PaymentHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "PaymentHandler", operation, attrs...)
}

// Create handles POST /payments.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode payment request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.CreatePayment(r.Context(), principal, application.CreatePaymentParams{
		Email:  req.Email,
		Amount: req.Amount,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, createPaymentResponse{Reference: result.Reference})
}

// Verify handles POST /payments/{reference}/verify.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.VerifyPayment(r.Context(), principal, r.PathValue("reference"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, verifyPaymentResponse{Amount: result.Amount, Currency: result.Currency})
}

// Webhook handles POST /webhooks/paystack. Any non-2xx answer makes the
// provider redeliver, so only malformed or unverifiable events and failed
// settlements are rejected.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	if err := paystack.VerifySignature(h.webhookSecret, body, r.Header.Get(paystack.SignatureHeader)); err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidSignature)
		return
	}

	event, err := paystack.ParseEvent(body)
	if err != nil {
		h.log(ctx, "Webhook", "error_kind", "bad_request").WarnContext(ctx, "failed to decode webhook event", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(ctx, "Webhook", "event", event.Event, "reference", event.Transaction.Reference)
	if event.Event != paystack.EventChargeSuccess || event.Transaction.Status != "success" {
		logger.InfoContext(ctx, "webhook event ignored", "status", event.Transaction.Status)
		w.WriteHeader(http.StatusOK)
		return
	}

	err = h.service.HandleChargeSuccess(ctx, application.ChargeEvent{
		Reference: event.Transaction.Reference,
		Amount:    event.Transaction.Amount,
		Currency:  event.Transaction.Currency,
		Status:    event.Transaction.Status,
		ID:        event.Transaction.ID,
	})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, application.ErrNotFound):
		// Not one of ours; redelivery cannot help.
		logger.WarnContext(ctx, "webhook for unknown payment acknowledged")
		w.WriteHeader(http.StatusOK)
	default:
		logger.ErrorContext(ctx, "webhook settlement failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
			ErrorCode: application.KindOf(err).String(),
			Message:   application.PublicMessage(err),
		})
	}
}

type createPaymentRequest struct {
	Email  string `json:"email"`
	Amount int64  `json:"amount"`
}

type createPaymentResponse struct {
	Reference string `json:"reference"`
}

type verifyPaymentResponse struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
