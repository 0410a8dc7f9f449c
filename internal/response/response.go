package response

// Response is the JSON envelope for middleware rejections
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Error returns an error response
func Error(message string) Response {
	return Response{
		Success: false,
		Message: message,
	}
}
