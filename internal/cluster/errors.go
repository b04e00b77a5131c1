package cluster

import (
	"github.com/pkg/errors"

	"github.com/dreamware/ringkv/internal/storage"
)

// Client-visible message strings
const (
	MsgSuccess         = "SUCCESS"
	ErrMsgNoKey        = "error: no key"
	ErrMsgKeyLen       = "error: improper key length"
	ErrMsgValueLen     = "error: value too long"
	ErrMsgInvalid      = "error: invalid request"
	ErrMsgGeneric      = "error: unable to process request"
	ErrMsgNotImplement = "error: not implemented"
)

// Error taxonomy shared by coordinator and participants
var (
	// ErrInvalidRequest covers malformed, incomplete or out-of-order requests
	ErrInvalidRequest = errors.New(ErrMsgInvalid)

	// ErrNoKey is returned for get or delete of an absent key
	ErrNoKey = errors.New(ErrMsgNoKey)

	// ErrCapacity is returned when the ring cannot take another slave
	ErrCapacity = errors.New("slave capacity reached")

	// ErrUnreachable is returned when a replica cannot be connected to
	ErrUnreachable = errors.New("replica unreachable")

	// ErrGeneric covers allocation and other local failures
	ErrGeneric = errors.New(ErrMsgGeneric)

	// ErrNotImplemented is returned for unknown message types
	ErrNotImplemented = errors.New(ErrMsgNotImplement)
)

// MessageFor maps an error to the text sent to clients
func MessageFor(err error) string {
	switch {
	case err == nil:
		return MsgSuccess
	case errors.Is(err, ErrNoKey), errors.Is(err, storage.ErrKeyNotFound):
		return ErrMsgNoKey
	case errors.Is(err, storage.ErrKeyLen):
		return ErrMsgKeyLen
	case errors.Is(err, storage.ErrValueLen):
		return ErrMsgValueLen
	case errors.Is(err, ErrInvalidRequest):
		return ErrMsgInvalid
	case errors.Is(err, ErrNotImplemented):
		return ErrMsgNotImplement
	default:
		return ErrMsgGeneric
	}
}
