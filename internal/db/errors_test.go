package db

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapStore(t *testing.T) {
	t.Run("nil error stays nil", func(t *testing.T) {
		if err := WrapStore("count_history", "", nil); err != nil {
			t.Errorf("WrapStore(nil) = %v, want nil", err)
		}
	})

	t.Run("wraps and unwraps", func(t *testing.T) {
		base := errors.New("connection reset")
		err := WrapStore("update_signals", "card-1/holo", base)

		if !IsStoreError(err) {
			t.Fatalf("expected StoreError, got %T", err)
		}
		if !errors.Is(err, base) {
			t.Error("expected errors.Is to find the wrapped error")
		}

		want := "store update_signals [card-1/holo]: connection reset"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("does not double wrap", func(t *testing.T) {
		inner := WrapStore("list_page", "", errors.New("timeout"))
		outer := WrapStore("refresh", "", inner)
		if outer != inner {
			t.Error("expected the existing StoreError to be returned unchanged")
		}
	})

	t.Run("found through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("refresh run: %w", WrapStore("list_page", "", errors.New("boom")))
		var se *StoreError
		if !errors.As(err, &se) {
			t.Fatal("expected errors.As to find StoreError")
		}
		if se.Op != "list_page" {
			t.Errorf("Op = %q, want list_page", se.Op)
		}
	})
}

func TestStoreError_NoRef(t *testing.T) {
	err := &StoreError{Op: "bulk_refresh", Err: errors.New("function missing")}
	if got := err.Error(); got != "store bulk_refresh: function missing" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsStoreError_PlainError(t *testing.T) {
	if IsStoreError(errors.New("plain")) {
		t.Error("plain error must not be reported as StoreError")
	}
	if IsStoreError(nil) {
		t.Error("nil must not be reported as StoreError")
	}
}
