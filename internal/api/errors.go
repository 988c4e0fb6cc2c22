package api

import "fmt"

// APIError is a gateway response with status=false. Code is the
// machine-readable error code the gateway attaches, when present.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("api error: %s", e.Message)
}

// HTTPError is a non-2xx response from the gateway or a storage node
// after retries are exhausted.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL)
}
