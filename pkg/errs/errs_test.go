package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", NotFound("room not found"), KindNotFound},
		{"conflict", Conflict("track already queued"), KindConflict},
		{"invalid input", InvalidInput("bad vote"), KindInvalidInput},
		{"closed", Closed("room is closed"), KindClosed},
		{"unauthorized", Unauthorized("not a member"), KindUnauthorized},
		{"unavailable", Unavailable("storage down", errors.New("dial tcp")), KindUnavailable},
		{"foreign error", errors.New("plain"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("adding track: %w", Conflict("track already queued"))
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict through wrap, got %v", KindOf(err))
	}
	if !IsKind(err, KindConflict) {
		t.Fatal("IsKind should see through wrapping")
	}
}

func TestUnavailablePreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Unavailable("storage down", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable via errors.Is")
	}
}
