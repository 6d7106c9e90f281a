package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"no servers", nats.ErrNoServers, true, true},
		{"timeout", nats.ErrTimeout, true, true},
		{"connection closed", nats.ErrConnectionClosed, true, true},
		{"context canceled", context.Canceled, false, false},
		{"unknown", errors.New("boom"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := classifyNATSError(tt.err)
			if class.Retryable != tt.retryable {
				t.Fatalf("Retryable = %v, want %v", class.Retryable, tt.retryable)
			}
			if class.RecordFailure != tt.record {
				t.Fatalf("RecordFailure = %v, want %v", class.RecordFailure, tt.record)
			}
		})
	}
}

func TestWrapTemporaryMarksRetryableErrors(t *testing.T) {
	err := wrapTemporaryIfNeeded(nats.ErrTimeout)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}

	permanent := errors.New("bad subject")
	if got := wrapTemporaryIfNeeded(permanent); !errors.Is(got, permanent) || domain.IsKind(got, domain.ErrTemporary) {
		t.Fatalf("permanent error must pass through, got %v", got)
	}
}
