package pipeline

import "time"

// Default values for statement extraction.
// These can be overridden via configuration or environment variables.
const (
	// DefaultModelName is the default Gemini model used for extraction.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultTemperature keeps extraction output close to deterministic.
	DefaultTemperature = 0.1

	// DefaultChunkSize is the maximum number of characters sent to the
	// extraction delegate in one request.
	DefaultChunkSize = 12000

	// DefaultDelegateTimeout bounds a single extraction request.
	DefaultDelegateTimeout = 90 * time.Second
)
