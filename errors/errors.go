package errors

import "fmt"

var (
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrMessageNotFound      = fmt.Errorf("message not found")
	ErrStatusTransition     = fmt.Errorf("illegal status transition")
	ErrUnknownDestination   = fmt.Errorf("unknown destination kind")
	ErrInvalidRequest       = fmt.Errorf("invalid request")
	ErrUnsupportedStoreKind = fmt.Errorf("unsupported store kind")
)
