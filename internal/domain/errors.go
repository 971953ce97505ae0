package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error independently of transport.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindStore
	KindGateway
	KindSignature
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindStore:
		return "store_error"
	case KindGateway:
		return "gateway_error"
	case KindSignature:
		return "signature_error"
	case KindConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an Error from any mix of Kind, message string and wrapped error.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			e.Message = a
		case error:
			e.Err = a
		}
	}
	return e
}

func ValidationError(msg string) error      { return E(KindValidation, msg) }
func NotFoundError(msg string) error        { return E(KindNotFound, msg) }
func StoreError(msg string, err error) error { return E(KindStore, msg, err) }
func GatewayError(msg string, err error) error {
	return E(KindGateway, msg, err)
}
func SignatureError(msg string) error { return E(KindSignature, msg) }
func ConflictError(msg string) error  { return E(KindConflict, msg) }

// KindOf returns the Kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-safe message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
