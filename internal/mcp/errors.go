// Package mcp exposes the vault index over the Model Context
// Protocol so AI clients can search and reindex notes.
package mcp

import (
	"context"
	"errors"
	"fmt"

	verrors "github.com/glibalien/obsidian-tools-sub002/internal/errors"
)

// Protocol error codes. Negative values below -32000 are
// implementation-defined per JSON-RPC.
const (
	ErrCodeIndexNotReady   = -32001
	ErrCodeProviderFailure = -32002
	ErrCodeTimeout         = -32003
	ErrCodeStoreFailure    = -32004

	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// ProtocolError is a JSON-RPC style error returned to MCP clients.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError reports a bad tool argument.
func NewInvalidParamsError(msg string) *ProtocolError {
	return &ProtocolError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts engine errors to protocol errors.
func MapError(err error) *ProtocolError {
	if err == nil {
		return nil
	}

	var ve *verrors.VaultError
	if errors.As(err, &ve) {
		return mapVaultError(ve)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ProtocolError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &ProtocolError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &ProtocolError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

func mapVaultError(ve *verrors.VaultError) *ProtocolError {
	switch ve.Category {
	case verrors.CategoryValidation:
		return &ProtocolError{Code: ErrCodeInvalidParams, Message: ve.Message}
	case verrors.CategoryProvider:
		if ve.Code == verrors.ErrCodeProviderTimeout {
			return &ProtocolError{Code: ErrCodeTimeout, Message: ve.Message}
		}
		return &ProtocolError{Code: ErrCodeProviderFailure, Message: ve.Message}
	case verrors.CategoryStore:
		switch ve.Code {
		case verrors.ErrCodeCorruptIndex:
			return &ProtocolError{
				Code:    ErrCodeIndexNotReady,
				Message: "Index is corrupt. Run 'obsidian-tools index --full'.",
			}
		default:
			return &ProtocolError{Code: ErrCodeStoreFailure, Message: ve.Message}
		}
	case verrors.CategoryIO:
		return &ProtocolError{Code: ErrCodeStoreFailure, Message: ve.Message}
	default:
		return &ProtocolError{Code: ErrCodeInternalError, Message: ve.Message}
	}
}
