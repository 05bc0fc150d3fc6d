package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeParse, "invalid requirement: %q", "foo>>1")

	if err.Code != ErrCodeParse {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeParse)
	}

	if err.Message != `invalid requirement: "foo>>1"` {
		t.Errorf("Message = %v", err.Message)
	}

	expected := `PARSE_ERROR: invalid requirement: "foo>>1"`
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrCodeMetadataFetch, cause, "fetch requests==2.31.0")

	if err.Code != ErrCodeMetadataFetch {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMetadataFetch)
	}
	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{"matching code", New(ErrCodeConflict, "test"), ErrCodeConflict, true},
		{"non-matching code", New(ErrCodeConflict, "test"), ErrCodeNetwork, false},
		{"outer code wins", Wrap(ErrCodeMetadataFetch, New(ErrCodeNetwork, "inner"), "outer"), ErrCodeMetadataFetch, true},
		{"fmt wrapped", fmt.Errorf("resolve: %w", New(ErrCodeResolutionTooDeep, "x")), ErrCodeResolutionTooDeep, true},
		{"non-Error type", errors.New("plain error"), ErrCodeInvalidInput, false},
		{"nil error", nil, ErrCodeInvalidInput, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{"Error type", New(ErrCodeMarker, "test"), ErrCodeMarker},
		{"plain error", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Error type", New(ErrCodeInvalidInput, "friendly message"), "friendly message"},
		{"plain error", errors.New("plain error"), "plain error"},
		{"nested", Wrap(ErrCodeMetadataFetch, New(ErrCodeNotFound, "no such package"), "fetch foo"), "fetch foo: no such package"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	codes := []Code{
		ErrCodeInvalidInput,
		ErrCodeInvalidPackage,
		ErrCodeParse,
		ErrCodeMarker,
		ErrCodeConflict,
		ErrCodeResolutionImpossible,
		ErrCodeResolutionTooDeep,
		ErrCodeMetadataFetch,
		ErrCodeNotFound,
		ErrCodeNetwork,
		ErrCodeLockOutdated,
		ErrCodeInternal,
		ErrCodeUnsupported,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %s", code)
		}
		seen[code] = true
	}
}
