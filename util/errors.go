package util

import (
	"fmt"
	"net/http"

	"hlsgrab/enums"
)

type Error struct {
	Message string
}

func (err *Error) Error() string {
	return err.Message
}

var (
	ErrParse              = &Error{Message: "manifest is unusable"}
	ErrKeyFetch           = &Error{Message: "failed to acquire decryption key"}
	ErrCheckpointMismatch = &Error{Message: "checkpoint does not match the manifest, start a fresh download"}
	ErrCheckpointAhead    = &Error{Message: "checkpoint claims more bytes than the temporary file holds"}
	ErrIO                 = &Error{Message: "failed writing to disk"}
	ErrInterrupted        = &Error{Message: "download interrupted"}
	ErrDuplicateSegment   = &Error{Message: "segment was already resolved"}
	ErrSegmentTooLarge    = &Error{Message: "segment exceeds the maximum allowed size"}
	ErrTimeout            = &Error{Message: "timeout error when downloading. try again"}
)

// FetchError is returned by the segment fetcher once it gives up on a URI.
type FetchError struct {
	URI        string
	Kind       enums.FetchErrorKind
	StatusCode int
	Attempts   int
	Permanent  bool
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case enums.FetchErrorHTTPStatus:
		return fmt.Sprintf(
			"fetch %s: unexpected status code %d (%s) after %d attempt(s)",
			e.URI, e.StatusCode, http.StatusText(e.StatusCode), e.Attempts,
		)
	case enums.FetchErrorTimeout:
		return fmt.Sprintf("fetch %s: timed out after %d attempt(s): %v", e.URI, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("fetch %s: network error after %d attempt(s): %v", e.URI, e.Attempts, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Transient() bool {
	return !e.Permanent
}

// DecryptError reports a segment that could not be decrypted.
type DecryptError struct {
	Kind   enums.DecryptErrorKind
	Length int
	Err    error
}

func (e *DecryptError) Error() string {
	if e.Kind == enums.DecryptErrorBadAlignment {
		return fmt.Sprintf("ciphertext length %d is not a positive multiple of the block size", e.Length)
	}
	return fmt.Sprintf("decryption failed: %v", e.Err)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}

func (e *DecryptError) BadAlignment() bool {
	return e.Kind == enums.DecryptErrorBadAlignment
}

// SegmentError ties a fetch or decrypt failure to its playlist position.
type SegmentError struct {
	Index uint64
	URI   string
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d (%s): %v", e.Index, e.URI, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// IsTransientStatus reports whether a non-2xx status is worth retrying.
func IsTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooEarly,
		http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
