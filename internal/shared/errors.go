package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Remote source errors. Every failure from the remote API is classified into exactly one of these.
	ErrTransient   = fmt.Errorf("transient remote failure")
	ErrFatal       = fmt.Errorf("fatal remote failure")
	ErrRemoteQuota = fmt.Errorf("remote quota exceeded")

	// Persistence errors
	ErrNotFound    = fmt.Errorf("record not found")
	ErrStaleRecord = fmt.Errorf("record modified concurrently")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
