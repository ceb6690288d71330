package errors

import "fmt"

var (
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrConnectionPanic  = fmt.Errorf("connection loop panic")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrMissingToken     = fmt.Errorf("missing auth token")
	ErrInvalidToken     = fmt.Errorf("invalid auth token")
	ErrInvalidConfig    = fmt.Errorf("invalid configuration")
)
