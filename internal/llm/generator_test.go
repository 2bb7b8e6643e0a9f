package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrTimeout},
		{"429", &StatusError{Code: http.StatusTooManyRequests, Message: "quota"}, ErrRateLimited},
		{"wrapped 429", fmt.Errorf("gemini: %w", &StatusError{Code: 429}), ErrRateLimited},
		{"504", &StatusError{Code: http.StatusGatewayTimeout}, ErrTimeout},
		{"500", &StatusError{Code: http.StatusInternalServerError}, ErrOther},
		{"plain", errors.New("boom"), ErrOther},
		{"already typed", Malformed("x", errors.New("bad json")), ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("op", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("Classify(%v) = %v, want kind %v", tt.err, got, tt.want)
			}
		})
	}

	if Classify("op", nil) != nil {
		t.Error("Classify(nil) should return nil")
	}
}

func TestDelegateError_IsOnlyMatchesOwnKind(t *testing.T) {
	err := error(NotConfigured("categorize"))
	if !errors.Is(err, ErrNotConfigured) {
		t.Error("expected ErrNotConfigured")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Error("did not expect ErrRateLimited")
	}
	if err.Error() != "categorize: delegate not configured" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestDecodeItems(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"plain array", `[{"a":1},{"a":2}]`, 2, false},
		{"fenced array", "```json\n[{\"a\":1}]\n```", 1, false},
		{"chatter around array", "Here you go:\n[{\"a\":1}]\nThanks", 1, false},
		{"object with field", `{"transactions":[{"a":1},{"a":2},{"a":3}]}`, 3, false},
		{"non-object elements skipped", `[{"a":1}, 2, "x"]`, 1, false},
		{"empty array", `[]`, 0, false},
		{"object without field", `{"foo":"bar"}`, 0, true},
		{"prose", "I could not find any transactions.", 0, true},
		{"empty", "   ", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeItems(tt.raw, "transactions")
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeItems() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("DecodeItems() returned %d items, want %d", len(got), tt.want)
			}
		})
	}
}
