package enums

type FetchErrorKind string

const (
	FetchErrorTimeout    FetchErrorKind = "timeout"
	FetchErrorHTTPStatus FetchErrorKind = "http_status"
	FetchErrorNetwork    FetchErrorKind = "network"
)

type DecryptErrorKind string

const (
	DecryptErrorBadAlignment  DecryptErrorKind = "bad_alignment"
	DecryptErrorCipherFailure DecryptErrorKind = "cipher_failure"
)
