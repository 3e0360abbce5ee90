package funpay

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthorized     = errors.New("account is not authorized")
	ErrMalformedResponse = errors.New("malformed response")
	ErrAccountData       = errors.New("account data not found on page")
)

// StatusError is returned for any non-200 reply.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}
