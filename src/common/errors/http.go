package errors

// Response is the error body every HTTP endpoint returns. Error carries the
// machine-readable "domain.code" identifier; Message is for humans.
type Response struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ToResponse converts an Error to an HTTP response body
func (e *Error) ToResponse() Response {
	return Response{
		Error:   string(e.Domain) + "." + string(e.Code),
		Message: e.Message,
	}
}

// NewResponse builds a response body from any error. Errors outside the
// structured system are masked as a generic internal error so their text
// never leaks to clients.
func NewResponse(err error) Response {
	if e, ok := err.(*Error); ok {
		return e.ToResponse()
	}
	return Response{
		Error:   string(DomainInternal) + ".internal",
		Message: "Internal server error",
	}
}
