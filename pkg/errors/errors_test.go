package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInvalidTransition, status: http.StatusBadRequest, publicMsg: "invalid transition", detailsOK: true},
		{code: CodeInsufficientBalance, status: http.StatusBadRequest, publicMsg: "insufficient balance", detailsOK: true},
		{code: CodeAmountMismatch, status: http.StatusBadRequest, publicMsg: "amount does not match order total", detailsOK: true},
		{code: CodePreconditionFailed, status: http.StatusBadRequest, publicMsg: "precondition failed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("db down")
	err := Wrap(CodeDependency, cause, "load order")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped error to match cause")
	}
	if err.Message() != "load order" {
		t.Fatalf("unexpected message %q", err.Message())
	}
}

func TestAsFindsTypedErrorThroughFmtWrap(t *testing.T) {
	typed := New(CodeInsufficientBalance, "insufficient balance").WithDetails(map[string]any{"availableCents": 10})
	wrapped := fmt.Errorf("create payout: %w", typed)

	got := As(wrapped)
	if got == nil {
		t.Fatalf("expected typed error")
	}
	if got.Code() != CodeInsufficientBalance {
		t.Fatalf("unexpected code %s", got.Code())
	}
	if !IsCode(wrapped, CodeInsufficientBalance) {
		t.Fatalf("expected IsCode to match")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("plain errors should default to internal")
	}
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(CodeInvalidTransition, "cannot move order from %s to %s", "pending", "on_the_way")
	if err.Message() != "cannot move order from pending to on_the_way" {
		t.Fatalf("unexpected message %q", err.Message())
	}
}

func TestIsClientFacing(t *testing.T) {
	if IsClientFacing(CodeInternal) || IsClientFacing(CodeDependency) {
		t.Fatalf("internal codes must not surface caller messages")
	}
	if !IsClientFacing(CodeAmountMismatch) {
		t.Fatalf("amount mismatch should surface its message")
	}
	if IsClientFacing("NOPE") {
		t.Fatalf("unknown codes are not client facing")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(CodeNotFound, stdErrors.New("record not found"), "order not found"))
	dump := Dump(err)

	if dump.Code != CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", dump.Code)
	}
	if len(dump.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d (%v)", len(dump.Chain), dump.Chain)
	}
	fields := dump.Fields()
	if _, ok := fields["sql_code"]; ok {
		t.Fatalf("empty driver fields should be omitted")
	}
}
