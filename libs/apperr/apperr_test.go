package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("submit: %w", SlotConflict("2026-12-25", "10:00 AM"))
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatal("expected wrapped slot conflict to match ErrSlotConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("slot conflict must not match ErrNotFound")
	}
	if KindOf(err) != KindSlotConflict {
		t.Fatalf("unexpected kind: %s", KindOf(err))
	}
}

func TestMessageOfHidesInternalCauses(t *testing.T) {
	if got := MessageOf(errors.New("pq: connection refused")); got != "internal error" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := MessageOf(NotFound("meeting", "m-1")); got != `meeting "m-1" not found` {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestUploadUnwraps(t *testing.T) {
	cause := errors.New("quota exceeded")
	err := Upload(cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected upload error to unwrap to its cause")
	}
	if KindOf(err) != KindUploadFailed {
		t.Fatalf("unexpected kind: %s", KindOf(err))
	}
}
