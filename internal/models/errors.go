// ABOUTME: Sentinel errors shared across the retrieval pipeline
// ABOUTME: Callers wrap these with %w and match with errors.Is
package models

import "errors"

var (
	// ErrConfiguration reports invalid settings such as overlap >= chunk size.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDimensionMismatch reports vectors whose length differs from the index or model.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrLengthMismatch reports parallel inputs of different lengths.
	ErrLengthMismatch = errors.New("input length mismatch")

	// ErrStorage reports a failure in the embedding cache.
	ErrStorage = errors.New("storage error")

	// ErrGeneratorUnavailable is returned when an answer is requested without a generator.
	ErrGeneratorUnavailable = errors.New("no generator configured")
)
