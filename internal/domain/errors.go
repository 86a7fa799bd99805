package domain

import "errors"

// Error kinds surfaced to clients. Lower layers wrap these with %w so the
// edge can map them with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRoomFull          = errors.New("room is full")
	ErrUploadNotComplete = errors.New("upload not complete")
	ErrIncompleteUpload  = errors.New("incomplete upload")
	ErrInvalidRange      = errors.New("invalid range")
	ErrStorageFailure    = errors.New("storage failure")
	ErrConflict          = errors.New("conflict")
)

// ErrorKind returns the machine-readable kind for err, or "internal".
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrUploadNotComplete):
		return "upload_not_complete"
	case errors.Is(err, ErrIncompleteUpload):
		return "incomplete_upload"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrStorageFailure):
		return "storage_failure"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

// PublicMessage is the client-facing text for err. Storage and unknown
// errors are reduced to their kind so no backend detail leaks.
func PublicMessage(err error) string {
	switch ErrorKind(err) {
	case "storage_failure":
		return ErrStorageFailure.Error()
	case "internal":
		return "internal error"
	default:
		return err.Error()
	}
}
