package response

type StandardApiResponse struct {
	Status        string      `json:"status"`                   // "success" or "error"
	StatusCode    int         `json:"status_code"`              // HTTP status code
	Message       string      `json:"message"`                  // Human-readable message, safe to show
	Data          interface{} `json:"data,omitempty"`           // Payload; attempt snapshot on step failures too
	Errors        interface{} `json:"errors,omitempty"`         // Error kind, backend status, redirect
	CorrelationID string      `json:"correlation_id,omitempty"` // Echo of X-Correlation-ID
}
