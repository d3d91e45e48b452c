package client

import (
	"errors"
	"fmt"
)

var (
	// ErrOfflineQueued reports that the intent could not be transmitted but
	// was durably persisted; the replay agent will deliver it when
	// connectivity returns. Callers should keep their optimistic state.
	ErrOfflineQueued = errors.New("intent queued for offline sync")

	// ErrReconciliationFailed reports that retries were exhausted and the
	// intent could not be persisted either. The optimistic state must be
	// rolled back.
	ErrReconciliationFailed = errors.New("reconciliation failed: retries exhausted")

	// ErrInconsistentResponse reports a batch response missing the result
	// for a key that was part of the request.
	ErrInconsistentResponse = errors.New("server response missing result for key")

	// ErrIntentCanceled reports that an opposite toggle canceled this intent
	// before dispatch; no network call was made and no state changed.
	ErrIntentCanceled = errors.New("intent canceled by opposite toggle")
)

// APIError is an application-level rejection from the server (non-2xx with a
// parsed error envelope). It is terminal: it never triggers the offline path.
type APIError struct {
	StatusCode int
	ErrorType  string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.ErrorType, e.Message)
}

// ItemError is a per-item failure embedded in an otherwise successful batch
// response (e.g. NOT_FOUND, FORBIDDEN). Terminal for that intent only.
type ItemError struct {
	Key  string
	Code string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s failed: %s", e.Key, e.Code)
}
