package main

import (
	"context"
	"errors"

	"github.com/readingattendance/readingd/internal/application"
	"github.com/readingattendance/readingd/internal/paystack"
)

// statusNotFound is reported for references Paystack has never seen, so the
// caller gets a failed precondition instead of an internal error.
const statusNotFound = "not_found"

type paystackProvider struct {
	client *paystack.Client
}

func (p paystackProvider) VerifyTransaction(ctx context.Context, reference string) (application.ProviderTransaction, error) {
	txn, err := p.client.VerifyTransaction(ctx, reference)
	if errors.Is(err, paystack.ErrTransactionNotFound) {
		return application.ProviderTransaction{Reference: reference, Status: statusNotFound}, nil
	}
	if err != nil {
		return application.ProviderTransaction{}, err
	}
	return application.ProviderTransaction{
		Reference: txn.Reference,
		Status:    txn.Status,
		Amount:    txn.Amount,
		Currency:  txn.Currency,
		ID:        txn.ID,
	}, nil
}
