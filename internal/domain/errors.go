package domain

import "errors"

// Error kinds. Adapters wrap the underlying cause with one of these so callers
// can classify failures with errors.Is.
var (
	// ErrConfiguration indicates a missing endpoint or credential. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrEmbeddingService indicates a transport or provider failure while embedding.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrRateLimited marks provider failures caused by rate limiting.
	// It is always combined with ErrEmbeddingService or ErrGeneration.
	ErrRateLimited = errors.New("rate limited")

	// ErrStore indicates an insert, truncate or query failure in the vector store.
	ErrStore = errors.New("store error")

	// ErrValidation indicates a malformed request.
	ErrValidation = errors.New("validation error")

	// ErrGeneration indicates the answer generator failed or is unavailable.
	ErrGeneration = errors.New("generation error")
)

// IsRetryable reports whether an embedding failure is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration) {
		return false
	}
	return errors.Is(err, ErrEmbeddingService) || errors.Is(err, ErrRateLimited)
}
