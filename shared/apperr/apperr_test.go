package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsChain(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", NotFound("account not found"), KindNotFound},
		{"wrapped conflict", fmt.Errorf("link alias: %w", Conflict("already aliased")), KindConflict},
		{"validation", Validation("bad parent"), KindValidation},
		{"internal", Internal(errors.New("boom"), "failed to create account"), KindInternal},
		{"plain error", errors.New("plain"), KindUnknown},
		{"nil", nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInternalHidesCauseFromMessage(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internal(cause, "failed to delete account")

	if got := Message(err, "fallback"); got != "failed to delete account" {
		t.Errorf("Message() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through errors.Is")
	}
	if got := Message(errors.New("raw"), "fallback"); got != "fallback" {
		t.Errorf("Message() on plain error = %q, want fallback", got)
	}
}
