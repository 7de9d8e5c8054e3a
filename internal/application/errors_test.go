package application

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", newError(KindNotFound, "session not found"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped error to match ErrNotFound")
	}
	if errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("did not expect match against a different kind")
	}
	if errors.Is(ErrNotFound, newError(KindNotFound, "other")) {
		t.Fatalf("sentinels must only match bare targets")
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "service error", err: newError(KindFailedPrecondition, "too short"), want: KindFailedPrecondition},
		{name: "validation error", err: &ValidationError{FieldErrors: map[string]string{"email": "email is required"}}, want: KindInvalidArgument},
		{name: "plain error", err: errors.New("boom"), want: KindInternal},
		{name: "joined error", err: errors.Join(errors.New("x"), ErrPermissionDenied), want: KindPermissionDenied},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPublicMessageHidesInternalCause(t *testing.T) {
	t.Parallel()

	internal := &Error{Kind: KindInternal, Message: "internal error", Err: errors.New("disk on fire")}
	if got := PublicMessage(internal); got != "internal error" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := PublicMessage(errors.New("raw")); got != "internal error" {
		t.Fatalf("expected generic message for unclassified error, got %q", got)
	}
	if got := PublicMessage(newError(KindPermissionDenied, "payment required")); got != "payment required" {
		t.Fatalf("expected service message, got %q", got)
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	var nilErr *ValidationError
	if nilErr.Error() != "" || nilErr.HasErrors() {
		t.Fatalf("nil validation error should be empty")
	}

	vErr := &ValidationError{}
	vErr.add("password", "password must be at least 6 characters")
	if !vErr.HasErrors() {
		t.Fatalf("expected recorded field error")
	}
	if !errors.Is(vErr, ErrInvalidArgument) {
		t.Fatalf("validation errors should match ErrInvalidArgument")
	}
}
