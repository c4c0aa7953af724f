package core

import (
	"errors"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	if !ID("").IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}
	if ID("not-empty").IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

// TestParseRunID tests run ID parsing
func TestParseRunID(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"run-123", false},
		{"", true},
		{"   ", true},
		{"../etc", true},
		{`a\b`, true},
	}

	for _, tt := range tests {
		id, err := ParseRunID(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRunID(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRunID(%q) unexpected error: %v", tt.input, err)
		}
		if id.String() != tt.input {
			t.Errorf("ParseRunID(%q) = %q", tt.input, id)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	if !IsDataFormatError(NewMissingColumnError("voltage")) {
		t.Error("missing column should be a data format error")
	}
	if !IsNumericError(ErrUndefinedAdjusted) {
		t.Error("undefined adjusted r2 should be a numeric error")
	}
	cause := errors.New("connection refused")
	err := NewResourceError("tracker", cause)
	if !IsResourceError(err) || !errors.Is(err, cause) {
		t.Errorf("resource error should wrap both sentinel and cause: %v", err)
	}
	if IsNumericError(err) {
		t.Error("resource error should not be numeric")
	}
}

func TestHashShort(t *testing.T) {
	h := NewHash([]byte("battery"))
	if len(h) != 64 {
		t.Fatalf("expected sha256 hex, got %d chars", len(h))
	}
	if h.Short() != string(h[:12]) {
		t.Errorf("Short() = %s", h.Short())
	}
	if NewHash([]byte("battery")) != h {
		t.Error("hash must be deterministic")
	}
}
