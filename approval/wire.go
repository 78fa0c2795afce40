package approval

// ApproveRequest is the body the hook POSTs to /approve.
type ApproveRequest struct {
	ToolInput map[string]any `json:"toolInput" jsonschema:"description=Tool arguments exactly as the agent sent them"`
	ToolName  string         `json:"toolName" jsonschema:"required,description=Name of the tool the agent wants to run"`
}

// ApproveResponse is the gateway's decision.
type ApproveResponse struct {
	Approved bool `json:"approved" jsonschema:"required"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)
