package api

// probeResponse is the payload for GET /healthz and GET /readyz.
type probeResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
