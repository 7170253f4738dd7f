// ABOUTME: Error taxonomy shared by readers, sinks and the orchestrator
// ABOUTME: Every failure wraps one of these so callers can use errors.Is
package models

import "errors"

var (
	// ErrSourceUnavailable covers connection and read failures against the
	// key-value store or a bundle file, and undecodable brain blobs.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedKey is returned when a Markov key or its hash does not
	// decode under the length-prefix scheme.
	ErrMalformedKey = errors.New("malformed markov key")

	// ErrParseDegraded marks a fragment or mapping file that was dropped.
	// It is logged and never aborts a pipeline.
	ErrParseDegraded = errors.New("parse degraded")

	// ErrWriteFailed is returned when the relational sink rejects a statement.
	ErrWriteFailed = errors.New("write failed")

	// ErrInvalidIdentifier is returned for table names outside the allow-list.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)
