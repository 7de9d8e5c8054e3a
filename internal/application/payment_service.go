package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/readingattendance/readingd/internal/persistence"
)

const (
	DefaultPaymentCurrency = "NGN"
	DefaultPaymentProvider = "paystack"

	providerStatusSuccess = "success"

	SettlementSourceVerify  = "verify"
	SettlementSourceWebhook = "webhook"
)

// PaymentProvider looks up a transaction at the payment provider.
type PaymentProvider interface {
	VerifyTransaction(ctx context.Context, reference string) (ProviderTransaction, error)
}

// PaymentConfig tunes payment records.
type PaymentConfig struct {
	Currency string
	Provider string
	// EventIDs generates ids for error log entries.
	EventIDs func() string
	Recorder Recorder
}

// PaymentService creates payments and settles them from either the client's
// verification call or the provider webhook. Settlement is a conditional
// pending to success update, so the user is granted access exactly once.
type PaymentService struct {
	store              persistence.Store
	provider           PaymentProvider
	referenceGenerator func() string
	now                func() time.Time
	cfg                PaymentConfig
	recorder           Recorder
	reporter           errorReporter
	logger             *slog.Logger
}

// NewPaymentService constructs a PaymentService with the provided dependencies.
func NewPaymentService(store persistence.Store, provider PaymentProvider, referenceGenerator func() string, now func() time.Time, cfg PaymentConfig) *PaymentService {
	return NewPaymentServiceWithLogger(store, provider, referenceGenerator, now, cfg, nil)
}

// NewPaymentServiceWithLogger constructs a PaymentService with a specified logger.
func NewPaymentServiceWithLogger(store persistence.Store, provider PaymentProvider, referenceGenerator func() string, now func() time.Time, cfg PaymentConfig, logger *slog.Logger) *PaymentService {
	if now == nil {
		now = time.Now
	}
	if referenceGenerator == nil {
		referenceGenerator = func() string { return "" }
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultPaymentCurrency
	}
	if cfg.Provider == "" {
		cfg.Provider = DefaultPaymentProvider
	}
	return &PaymentService{
		store:              store,
		provider:           provider,
		referenceGenerator: referenceGenerator,
		now:                now,
		cfg:                cfg,
		recorder:           defaultRecorder(cfg.Recorder),
		reporter:           errorReporter{audit: store, eventIDs: cfg.EventIDs, now: now},
		logger:             defaultLogger(logger),
	}
}

func (s *PaymentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PaymentService", operation, attrs...)
}

// CreatePayment records a pending payment and returns its reference.
func (s *PaymentService) CreatePayment(ctx context.Context, principal Principal, params CreatePaymentParams) (result CreatePaymentResult, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("payment store not configured")
		return
	}

	email := strings.TrimSpace(strings.ToLower(params.Email))
	logger := s.loggerWith(ctx, "CreatePayment", "user_id", principal.UserID, "amount", params.Amount)
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "createPayment", principal.UserID, err)
			logOutcome(ctx, logger, "create payment failed", err)
			return
		}
		logger.With("reference", result.Reference).InfoContext(ctx, "payment created")
	}()

	if strings.TrimSpace(principal.UserID) == "" {
		err = newError(KindUnauthenticated, "authentication required")
		return
	}

	vErr := &ValidationError{}
	if email == "" {
		vErr.add("email", "email is required")
	} else if _, parseErr := mail.ParseAddress(email); parseErr != nil {
		vErr.add("email", "email is invalid")
	}
	if params.Amount <= 0 {
		vErr.add("amount", "amount must be positive")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	payment := persistence.Payment{
		Reference: "reading_tracker_" + s.referenceGenerator(),
		UserID:    principal.UserID,
		Email:     email,
		Amount:    params.Amount,
		Currency:  s.cfg.Currency,
		Status:    persistence.PaymentPending,
		Provider:  s.cfg.Provider,
		CreatedAt: s.now(),
	}
	if err = s.store.CreatePayment(ctx, payment); err != nil {
		if errors.Is(err, persistence.ErrConflict) {
			err = newError(KindAlreadyExists, "payment reference already exists")
		}
		return
	}

	result = CreatePaymentResult{Reference: payment.Reference}
	return
}

// VerifyPayment confirms a payment with the provider and settles it. An
// already settled payment is answered from the stored record without
// contacting the provider.
func (s *PaymentService) VerifyPayment(ctx context.Context, principal Principal, reference string) (result VerifyPaymentResult, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("payment store not configured")
		return
	}

	reference = strings.TrimSpace(reference)
	logger := s.loggerWith(ctx, "VerifyPayment", "user_id", principal.UserID, "reference", reference)
	settled := false
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "verifyPayment", principal.UserID, err)
			logOutcome(ctx, logger, "payment verification failed", err)
			return
		}
		if settled {
			s.recorder.PaymentSettled(SettlementSourceVerify)
		}
		logger.With("settled", settled, "amount", result.Amount).InfoContext(ctx, "payment verified")
	}()

	if strings.TrimSpace(principal.UserID) == "" {
		err = newError(KindUnauthenticated, "authentication required")
		return
	}
	if reference == "" {
		err = newError(KindInvalidArgument, "payment reference is required")
		return
	}

	payment, err := s.store.GetPayment(ctx, reference)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = newError(KindNotFound, "payment not found")
		}
		return
	}
	if payment.UserID != principal.UserID {
		err = newError(KindPermissionDenied, "payment belongs to another user")
		return
	}
	if payment.Status == persistence.PaymentSuccess {
		result = storedResult(payment)
		return
	}

	if s.provider == nil {
		err = fmt.Errorf("payment provider not configured")
		return
	}
	txn, err := s.provider.VerifyTransaction(ctx, reference)
	if err != nil {
		err = fmt.Errorf("verify transaction with provider: %w", err)
		return
	}
	if txn.Status != providerStatusSuccess {
		err = newError(KindFailedPrecondition, "payment not successful")
		return
	}

	settled, err = s.settle(ctx, payment, persistence.PaymentSettlement{
		Reference:         reference,
		ProviderReference: txn.ID,
		AmountPaid:        txn.Amount,
		VerifiedAt:        s.now(),
	})
	if err != nil {
		return
	}

	currency := txn.Currency
	if currency == "" {
		currency = payment.Currency
	}
	result = VerifyPaymentResult{Amount: txn.Amount, Currency: currency}
	return
}

// HandleChargeSuccess settles the payment named by a charge.success webhook
// event. Events for payments that are already settled are ignored.
func (s *PaymentService) HandleChargeSuccess(ctx context.Context, event ChargeEvent) (err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("payment store not configured")
		return
	}

	reference := strings.TrimSpace(event.Reference)
	logger := s.loggerWith(ctx, "HandleChargeSuccess", "reference", reference)
	settled := false
	defer func() {
		if err != nil {
			err = s.reporter.wrap(ctx, logger, "paystackWebhook", "", err)
			logOutcome(ctx, logger, "webhook settlement failed", err)
			return
		}
		if settled {
			s.recorder.PaymentSettled(SettlementSourceWebhook)
		}
		logger.With("settled", settled).InfoContext(ctx, "charge event processed")
	}()

	if reference == "" {
		err = newError(KindInvalidArgument, "payment reference is required")
		return
	}

	payment, err := s.store.GetPayment(ctx, reference)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = newError(KindNotFound, "payment not found")
		}
		return
	}
	if payment.Status == persistence.PaymentSuccess {
		return
	}

	settled, err = s.settle(ctx, payment, persistence.PaymentSettlement{
		Reference:         reference,
		ProviderReference: event.ID,
		AmountPaid:        event.Amount,
		VerifiedAt:        s.now(),
		WebhookVerified:   true,
	})
	return
}

func (s *PaymentService) settle(ctx context.Context, payment persistence.Payment, settlement persistence.PaymentSettlement) (settled bool, err error) {
	err = s.store.WithinTx(ctx, func(tx persistence.Tx) error {
		applied, settleErr := tx.SettlePayment(ctx, settlement)
		if settleErr != nil {
			return settleErr
		}
		settled = applied
		if !applied {
			return nil
		}
		return tx.GrantPayment(ctx, payment.UserID, payment.Reference, settlement.VerifiedAt)
	})
	return
}

func storedResult(payment persistence.Payment) VerifyPaymentResult {
	amount := payment.AmountPaid
	if amount == 0 {
		amount = payment.Amount
	}
	return VerifyPaymentResult{Amount: amount, Currency: payment.Currency}
}
