// Package apperror defines the error kinds surfaced by the miner tools.
// Callers match on the sentinel kinds with errors.Is.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork    = errors.New("network error")
	ErrNotFound   = errors.New("not found")
	ErrArchive    = errors.New("archive error")
	ErrFilesystem = errors.New("filesystem error")
)

type AppError struct {
	Kind    error
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Kind
}

// Network covers an unreachable remote service or a non-2xx response.
func Network(format string, args ...interface{}) *AppError {
	return &AppError{
		Kind:    ErrNetwork,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound covers an empty search result or an unresolvable branch/commit.
func NotFound(format string, args ...interface{}) *AppError {
	return &AppError{
		Kind:    ErrNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// Archive covers an unreadable, corrupt, or unsupported archive.
func Archive(format string, args ...interface{}) *AppError {
	return &AppError{
		Kind:    ErrArchive,
		Message: fmt.Sprintf(format, args...),
	}
}

// Filesystem covers an unwritable destination.
func Filesystem(format string, args ...interface{}) *AppError {
	return &AppError{
		Kind:    ErrFilesystem,
		Message: fmt.Sprintf(format, args...),
	}
}
