package audio

import "errors"

var (
	// ErrCaptureTimeout means no phrase started before the profile timeout.
	ErrCaptureTimeout = errors.New("capture: listening timed out")
	// ErrCaptureDevice covers stream open/read failures of the input device.
	ErrCaptureDevice = errors.New("capture: device error")
	// ErrInvalidArtifact means a recording is missing or too small to be speech.
	ErrInvalidArtifact = errors.New("capture: invalid artifact")
	// ErrCaptureExhausted is returned once the primary and every fallback failed.
	ErrCaptureExhausted = errors.New("capture: all acquisition methods failed")
)
