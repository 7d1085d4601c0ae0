package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("load request: %w", NotFound("blood request not found"))
	if !IsKind(err, KindNotFound) {
		t.Fatalf("expected not_found, got %s", KindOf(err))
	}
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("expected internal, got %s", got)
	}
	if IsKind(nil, KindInternal) {
		t.Error("nil error must not carry a kind")
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, KindInternal, "sum completed units")
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable")
	}
	if Wrap(nil, KindInternal, "noop") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestMessage_HidesInternalCause(t *testing.T) {
	err := Wrap(errors.New("pq: password authentication failed"), KindInternal, "query donors")
	if got := Message(err); got != "internal server error" {
		t.Errorf("internal message leaked: %q", got)
	}
	if got := Message(Validation("units out of range")); got != "units out of range" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{InvalidState("x"), http.StatusConflict},
		{Validation("x"), http.StatusBadRequest},
		{Forbidden("x"), http.StatusForbidden},
		{Conflict("x"), http.StatusConflict},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHTTPError(t *testing.T) {
	he := HTTPError(Forbidden("you are not authorized to cancel this request"))
	if he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", he.Code)
	}
	if he.Message != "you are not authorized to cancel this request" {
		t.Errorf("unexpected message %v", he.Message)
	}
}
