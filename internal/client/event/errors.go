package event

import (
	"errors"
	"fmt"

	"github.com/iudanet/recordsync/pkg/api"
)

// Common client errors
var (
	// ErrClientOffline operation needs the network while disconnected
	ErrClientOffline = errors.New("client is offline")

	// ErrResponseTimeout no response arrived for a request in time
	ErrResponseTimeout = errors.New("response timeout")

	// ErrRecordDestroyed record was discarded or deleted and can no longer be used
	ErrRecordDestroyed = errors.New("record is destroyed")

	// ErrRecordReadOnly write dropped because the client is in read-only mode
	ErrRecordReadOnly = errors.New("record is read-only")

	// ErrRecordDeleted record was deleted locally or remotely
	ErrRecordDeleted = errors.New("record is deleted")

	// ErrVersionExists server rejected a write because the version already exists
	ErrVersionExists = errors.New("version already exists")

	// ErrNoMergeStrategy no merge strategy configured for a conflict
	ErrNoMergeStrategy = errors.New("no merge strategy configured")

	// ErrInvalidArgs invalid arguments passed to a record method
	ErrInvalidArgs = errors.New("invalid arguments")

	// ErrMessageDenied server denied the message
	ErrMessageDenied = errors.New("message denied")

	// ErrPermissionDenied server denied the message due to permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRecordNotFound server has no such record
	ErrRecordNotFound = errors.New("record not found")
)

// ServerError ошибка, которую сервер вернул в ответ на сообщение
type ServerError struct {
	Action api.Action // Action действие ответа (MESSAGE_DENIED, VERSION_EXISTS, ...)
	Reason string     // Reason описание от сервера
}

// Error implements error
func (e *ServerError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("server error: %s", e.Action)
	}
	return fmt.Sprintf("server error: %s: %s", e.Action, e.Reason)
}

// Unwrap сопоставляет ответ сервера с общей ошибкой клиента
func (e *ServerError) Unwrap() error {
	switch e.Action {
	case api.ActionMessageDenied:
		return ErrMessageDenied
	case api.ActionMessagePermissionError:
		return ErrPermissionDenied
	case api.ActionVersionExists:
		return ErrVersionExists
	case api.ActionRecordNotFound:
		return ErrRecordNotFound
	default:
		return nil
	}
}

// FromMessage возвращает ошибку, которую несёт сообщение сервера, или nil
func FromMessage(msg *api.Message) error {
	if !msg.IsError {
		return nil
	}
	return &ServerError{Action: msg.Action, Reason: msg.Reason}
}

// ServerErrorFrom возвращает ошибку сервера для ответа независимо от флага IsError
func ServerErrorFrom(msg *api.Message) error {
	return &ServerError{Action: msg.Action, Reason: msg.Reason}
}
