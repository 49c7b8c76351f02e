package storage

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no character matches the given id or name.
	ErrNotFound = errors.New("storage: character not found")
	// ErrNameTaken is returned when a create collides with an existing name.
	ErrNameTaken = errors.New("storage: character name already taken")
	// ErrUpload is returned when the remote pinning step fails. Nothing
	// durable has been written when this error surfaces.
	ErrUpload = errors.New("storage: pin upload failed")
	// ErrClosed is returned for any operation after Close.
	ErrClosed = errors.New("storage: service is closed")
)

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
