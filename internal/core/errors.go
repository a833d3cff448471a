// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors; wrap with fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	// Configuration errors, detected before any thread starts
	ErrConfigInvalid = errors.New("mercury: invalid configuration")

	// Resource errors, fatal to the pipeline
	ErrSourceOpen    = errors.New("mercury: input source open failed")
	ErrOutputOpen    = errors.New("mercury: output file open failed")
	ErrProcessorInit = errors.New("mercury: packet processor init failed")
	ErrNotSupported  = errors.New("mercury: not supported on this platform")

	// Drain errors, absorbed per output file
	ErrOutputBroken = errors.New("mercury: output file unusable")
)
