package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{ErrMissingToken, http.StatusUnauthorized},
		{ErrUserInactive, http.StatusForbidden},
		{ErrTenantContextRequired, http.StatusBadRequest},
		{ErrTenantNotFound, http.StatusNotFound},
		{ErrAccessNotFound, http.StatusNotFound},
		{ErrInsufficientAccess, http.StatusForbidden},
		{Conflict("dup", ""), http.StatusConflict},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.Status(); got != tc.want {
			t.Fatalf("%s: status=%d, want %d", tc.err.Code, got, tc.want)
		}
	}
}

func TestIsMatchesWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("require access: %w", ErrInsufficientAccess)
	if !errors.Is(wrapped, ErrInsufficientAccess) {
		t.Fatal("expected wrapped sentinel to match")
	}
	if errors.Is(wrapped, ErrMissingPermission) {
		t.Fatal("different codes must not match")
	}
	if From(wrapped) != ErrInsufficientAccess {
		t.Fatal("From should return the original *Error")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("foreign errors are internal")
	}
}
