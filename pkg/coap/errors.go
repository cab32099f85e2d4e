package coap

import "errors"

// Error kinds surfaced by the engine. Callers compare with errors.Is.
var (
	ErrInvalidArgument  = errors.New("coap: invalid argument")
	ErrOutOfMemory      = errors.New("coap: out of memory")
	ErrOutOfOrder       = errors.New("coap: option added out of order")
	ErrTruncated        = errors.New("coap: packet truncated")
	ErrUnsupported      = errors.New("coap: unsupported version")
	ErrNoSuchOption     = errors.New("coap: no such option")
	ErrNoSuchResource   = errors.New("coap: no such resource")
	ErrAlreadyExists    = errors.New("coap: already exists")
	ErrBusy             = errors.New("coap: busy")
	ErrCancelled        = errors.New("coap: cancelled")
	ErrTimeout          = errors.New("coap: timeout")
	ErrNotAuthorized    = errors.New("coap: not authorized")
	ErrPermanentFailure = errors.New("coap: permanent failure, retransmits exhausted")
)
