// Package transport wraps the single blocking request/response exchange the
// host process provides. The actual network I/O is a capability supplied by
// the host; this package only frames requests, synthesizes failure
// responses, and decodes JSON bodies. No retries, no redirects, no
// streaming.
package transport

import (
	"encoding/json"
	"fmt"
)

// Request is one outbound exchange. Monetary fields inside Body are already
// encoded as decimal strings by the caller.
type Request struct {
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body,omitempty"`
	TimeoutMs int               `json:"timeout_ms"`
}

// Response is the outcome of one exchange. A transport-level failure is
// reported with Status 0 and a populated Err; HTTP-level failures keep their
// upstream status.
type Response struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	Err     string            `json:"error,omitempty"`
}

// IsSuccess reports whether the status is in [200, 300).
func (r Response) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

// HostFunc is the host-supplied capability performing one blocking HTTP
// exchange.
type HostFunc func(Request) (Response, error)

// Execute performs one exchange through the host capability. It never
// fails: if the host returns an error, or panics, the result is a synthetic
// Response with Status 0 and a descriptive Err.
func Execute(host HostFunc, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = Response{Status: 0, Err: fmt.Sprintf("transport panic: %v", r)}
		}
	}()

	if host == nil {
		return Response{Status: 0, Err: "no transport capability configured"}
	}

	resp, err := host(req)
	if err != nil {
		return Response{Status: 0, Err: err.Error()}
	}
	return resp
}

// DecodeJSON strictly decodes the response body into v. On mismatch the
// error embeds up to 200 bytes of the raw body for diagnosis.
func DecodeJSON(resp Response, v any) error {
	if err := json.Unmarshal([]byte(resp.Body), v); err != nil {
		excerpt := resp.Body
		if len(excerpt) > 200 {
			excerpt = excerpt[:200]
		}
		return fmt.Errorf("JSON parse error: %v - body: %s", err, excerpt)
	}
	return nil
}
