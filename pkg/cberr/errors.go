package cberr

import "errors"

// Transport errors.
var (
	ErrConnectFailed      = errors.New("connect failed")
	ErrReadFailed         = errors.New("read failed")
	ErrWriteFailed        = errors.New("write failed")
	ErrTLSHandshakeFailed = errors.New("tls handshake failed")
	ErrOperationTimeout   = errors.New("operation timeout")
)

// Auth errors.
var (
	ErrSASLRejected      = errors.New("sasl mechanism rejected")
	ErrCertificateInvalid = errors.New("certificate invalid")
)

// Routing errors.
var (
	ErrNoAvailableNode   = errors.New("no available node")
	ErrNotMyVBucket      = errors.New("not my vbucket")
	ErrNodeQuarantined   = errors.New("node quarantined")
)

// Pool errors.
var (
	ErrConnectionPoolExhausted = errors.New("connection pool exhausted")
	ErrPoolClosed              = errors.New("connection pool closed")
)

// Server errors (non-success protocol statuses not otherwise retried).
var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrKeyExists      = errors.New("key exists")
	ErrValueTooLarge  = errors.New("value too large")
	ErrNotStored      = errors.New("not stored")
	ErrServerBusy     = errors.New("server busy")
	ErrTemporaryFail  = errors.New("temporary failure")
	ErrUnknownCommand = errors.New("unknown command")
	ErrOutOfMemory    = errors.New("server out of memory")
	ErrInternalError  = errors.New("server internal error")
)

// Client errors.
var (
	ErrSerializationFailed = errors.New("serialization failed")
	ErrBadRequestShape     = errors.New("bad request shape")
	ErrCancelled           = errors.New("operation cancelled")
)

// Retryable reports whether err is one of the spec §7 locally-retried
// classes: NotMyVBucket, Busy, TemporaryFailure, or a transport error
// against a single connection. Auth errors and the remaining permanent
// server errors are not retried.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNotMyVBucket),
		errors.Is(err, ErrServerBusy),
		errors.Is(err, ErrTemporaryFail),
		errors.Is(err, ErrConnectFailed),
		errors.Is(err, ErrReadFailed),
		errors.Is(err, ErrWriteFailed):
		return true
	default:
		return false
	}
}
