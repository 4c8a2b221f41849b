// Package faults defines the error taxonomy shared by the connection and
// subscription pipeline. Interactive handlers translate these into redirect
// flags; the webhook and job surfaces translate them into status codes and
// per-item error records.
package faults

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrUnauthorized    = errors.New("caller is not allowed to perform this action")
	ErrNotFound        = errors.New("business not found")
	ErrVersionConflict = errors.New("business was modified concurrently")
)

// ValidationError marks bad caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError wraps a failed identity- or billing-provider call.
// Retryable steers the webhook surface: true means respond non-2xx so the
// provider redelivers; false means the failure cannot be repaired by retry.
type ProviderError struct {
	Provider  string
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MissingMetadataError marks a webhook event that lacks the correlation
// fields required to process it. Redelivery cannot repair it, so it must be
// acknowledged and logged as unrecoverable.
type MissingMetadataError struct {
	EventID string
	Missing []string
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("webhook event %s missing required metadata: %v", e.EventID, e.Missing)
}

// UnrecoverableError marks a webhook event whose processing failed in a way
// redelivery cannot repair, such as an ownership conflict. Acknowledged and
// logged instead of retried.
type UnrecoverableError struct {
	EventID string
	Reason  string
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("webhook event %s cannot be processed: %s", e.EventID, e.Reason)
}

// StaleRefreshError marks a business that cannot be refreshed because its
// stored credentials or profile reference are gone. Recorded per business;
// never aborts a batch.
type StaleRefreshError struct {
	BusinessID string
	Reason     string
}

func (e *StaleRefreshError) Error() string {
	return fmt.Sprintf("business %s cannot be refreshed: %s", e.BusinessID, e.Reason)
}

// RateLimitedError is returned when a manual refresh is requested before the
// 24h window since the last update has elapsed. Not a failure.
type RateLimitedError struct {
	RetryAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("refresh rate limited until %s", e.RetryAt.Format(time.RFC3339))
}
