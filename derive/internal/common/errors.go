package common

import (
	"errors"
)

// These errors are used by the derivation stages.
var (
	// ErrUnknownBatcherVersion is returned for batcher transactions with an unsupported version byte
	ErrUnknownBatcherVersion = errors.New("unknown batcher transaction version")

	// ErrTruncatedFrame is returned when a frame ends before its declared length
	ErrTruncatedFrame = errors.New("truncated frame")

	// ErrInvalidLastFrameFlag is returned when the is_last byte is neither 0 nor 1
	ErrInvalidLastFrameFlag = errors.New("invalid is_last flag")

	// ErrFrameTooLarge is returned when a frame declares more data than allowed
	ErrFrameTooLarge = errors.New("frame data too large")

	// ErrUnknownBatchVersion is returned for batches other than singular batches
	ErrUnknownBatchVersion = errors.New("unknown batch version")

	// ErrEmptyBatchData is returned when a batch item carries no bytes
	ErrEmptyBatchData = errors.New("empty batch data")
)
