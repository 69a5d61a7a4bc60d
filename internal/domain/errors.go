package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so the transport can decide between ack and redelivery
// without leaking infrastructure details.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrBadRequest = errors.New("bad request")
)
