package tracking

import "errors"

// Sentinel errors for the tracking service layer.
var (
	ErrNotFound = errors.New("email not found")
)
