package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrOnlyCensoredFiles = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrInvalidPayload    = fmt.Errorf("invalid event payload")

	ErrValidation         = fmt.Errorf("invalid message")
	ErrStorageUnavailable = fmt.Errorf("storage unavailable")
	ErrPeerUnreachable    = fmt.Errorf("peer unreachable")
	ErrTransportFatal     = fmt.Errorf("transport failure")
	ErrRoomBusy           = fmt.Errorf("room is busy")
	ErrShuttingDown       = fmt.Errorf("server is shutting down")
	ErrAlreadyRegistered  = fmt.Errorf("connection already registered in another room")
	ErrUnauthorized       = fmt.Errorf("unauthorized")
)
