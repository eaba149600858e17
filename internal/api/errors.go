package api

import "net/http"

// ErrCode is a stable machine-readable error identifier, distinct from the
// human-readable message, carried in the bodies written by WriteErrorWithCode
// and in the errorCode of the data handlers' MTConnectError documents. The
// bodies written by BearerAuth, Recoverer and ResponseTimeout do not use
// these constants.
type ErrCode string

const (
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrRateLimited       ErrCode = "RATE_LIMITED"
	ErrInvalidParameter  ErrCode = "INVALID_PARAMETER"
	ErrOutOfRange        ErrCode = "OUT_OF_RANGE"
	ErrNotFound          ErrCode = "NOT_FOUND"
	ErrUnsupportedAccept ErrCode = "UNSUPPORTED_ACCEPT"
	ErrInternal          ErrCode = "INTERNAL_ERROR"
	ErrUnauthorized      ErrCode = "UNAUTHORIZED"
)

// WriteErrorWithCode writes a JSON error body carrying both the stable code
// and a human-readable message. REST handlers that need the MTConnectError
// XML/JSON document shape use printer.RenderError instead; this is for
// middleware-level failures that never reach a data-item-aware handler.
func WriteErrorWithCode(w http.ResponseWriter, status int, code ErrCode, message string) {
	WriteJSON(w, status, struct {
		Code  ErrCode `json:"code"`
		Error string  `json:"error"`
	}{Code: code, Error: message})
}
