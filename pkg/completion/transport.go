package completion

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

type recorderKey struct{}

// bodyRecorder holds the raw response of one call
type bodyRecorder struct {
	received   bool
	statusCode int
	body       []byte
}

func withRecorder(ctx context.Context) (context.Context, *bodyRecorder) {
	rec := &bodyRecorder{}
	return context.WithValue(ctx, recorderKey{}, rec), rec
}

// capturingTransport buffers response bodies into the recorder carried by the
// request context, so error classification can see what the server sent.
type capturingTransport struct {
	base http.RoundTripper
}

func (t *capturingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	rec, ok := req.Context().Value(recorderKey{}).(*bodyRecorder)
	if !ok {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	rec.received = true
	rec.statusCode = resp.StatusCode
	rec.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
