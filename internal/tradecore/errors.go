package tradecore

import (
	"errors"
	"strings"
)

// Error kinds returned by the engine. Wrap with fmt.Errorf("%w: ...") and
// test with errors.Is.
var (
	ErrValidation          = errors.New("invalid input")
	ErrUnsupportedToken    = errors.New("unsupported token")
	ErrLookupFailed        = errors.New("lookup failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSubmission          = errors.New("submission failed")
	ErrPartialBatch        = errors.New("partial batch failure")
	ErrNoLegs              = errors.New("no legs to dispatch")
)

// errSkipLeg marks a leg that had nothing to do (zero balance after clamping).
var errSkipLeg = errors.New("nothing to submit")

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "-32005") || strings.Contains(s, "rate limit")
}

func revertReason(e error) string {
	s := e.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		return s[i:]
	}
	return s
}
