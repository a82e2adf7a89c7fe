package responses

// SuccessEnvelope wraps every 2xx body and the 409 outcome bodies.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorBody is the public shape of a typed error.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
