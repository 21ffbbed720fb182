package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// NewHTTPHost adapts a net/http client into the host transport capability.
// It is the reference host used by the CLI harness; an embedding host
// process supplies its own HostFunc instead. A nil client gets a plain
// http.Client with no transport-level timeout — per-request deadlines come
// from Request.TimeoutMs.
func NewHTTPHost(client *http.Client) HostFunc {
	if client == nil {
		client = &http.Client{}
	}

	return func(req Request) (Response, error) {
		ctx := context.Background()
		if req.TimeoutMs > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
			defer cancel()
		}

		var body io.Reader
		if req.Body != "" {
			body = strings.NewReader(req.Body)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
		if err != nil {
			return Response{}, err
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		httpResp, err := client.Do(httpReq)
		if err != nil {
			return Response{}, err
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return Response{}, err
		}

		headers := make(map[string]string, len(httpResp.Header))
		for k := range httpResp.Header {
			headers[k] = httpResp.Header.Get(k)
		}

		return Response{
			Status:  httpResp.StatusCode,
			Headers: headers,
			Body:    string(respBody),
		}, nil
	}
}
