package errors

const (
	HttpInternalError     = "internal_error"
	HttpInvalidJsonError  = "invalid_json"
	HttpDashboardNotFound = "dashboard_not_found"
	HttpSessionNotFound   = "session_not_found"
	HttpComponentNotFound = "component_not_found"
	HttpInvalidEventError = "invalid_event"
	HttpBindingError      = "invalid_binding"
	HttpDatasetNotFound   = "dataset_not_found"
	HttpDataLayerError    = "data_layer_unavailable"
)

// ErrorResponse is the error response body for session API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
