package errors

const (
	HttpInternalError           = "internal_error"
	HttpInvalidJsonError        = "invalid_json"
	HttpInvalidCsvError         = "invalid_csv"
	HttpValidationError         = "validation_failed"
	HttpUnsupportedVersionError = "unsupported_version"
	HttpDuplicateBatchError     = "duplicate_batch"
	HttpNotFoundError           = "not_found"
)

// ErrorResponse is the error response body returned by all HTTP endpoints.
// The boundary never leaks a raw stack trace; details carries structured
// context such as the list of failing columns.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
