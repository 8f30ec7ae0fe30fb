package limits

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSize(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		max     int
		wantErr error
	}{
		{"empty", nil, 10, ErrEmpty},
		{"at limit", make([]byte, 10), 10, nil},
		{"over limit", make([]byte, 11), 10, ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSize(tt.data, tt.max)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDisplayName(t *testing.T) {
	if err := ValidateDisplayName("Alice"); err != nil {
		t.Errorf("Alice: %v", err)
	}
	if err := ValidateDisplayName(strings.Repeat("友", MaxDisplayName)); err != nil {
		t.Errorf("multi-byte name at the character limit rejected: %v", err)
	}
	if err := ValidateDisplayName(""); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty name: got %v", err)
	}
	if err := ValidateDisplayName(strings.Repeat("a", MaxDisplayName+1)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("long name: got %v", err)
	}
	if err := ValidateDisplayName("bad\xff"); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("invalid utf-8: got %v", err)
	}
}

func TestValidateRequestMessage(t *testing.T) {
	if err := ValidateRequestMessage(""); err != nil {
		t.Errorf("empty note should be allowed: %v", err)
	}
	if err := ValidateRequestMessage(strings.Repeat("x", MaxRequestMessage+1)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("long note: got %v", err)
	}
}

func TestValidateMessageText(t *testing.T) {
	if err := ValidateMessageText(""); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty text: got %v", err)
	}
	if err := ValidateMessageText("hi"); err != nil {
		t.Errorf("hi: %v", err)
	}
	if err := ValidateMessageText(strings.Repeat("x", MaxMessageText+1)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("long text: got %v", err)
	}
}
