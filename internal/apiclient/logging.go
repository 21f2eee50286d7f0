package apiclient

import (
	"io"
	"log/slog"
	"net/http"
	"time"
)

// loggingTransport logs every outbound request once its body has been
// consumed: method, path, status, duration and bytes read.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.logger.Debug("request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("request_id", req.Header.Get(HeaderRequestID)),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	resp.Body = &countingBody{
		ReadCloser: resp.Body,
		onClose: func(n int64) {
			t.logger.Debug("request completed",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("request_id", req.Header.Get(HeaderRequestID)),
				slog.Int("status", resp.StatusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", n),
			)
		},
	}
	return resp, nil
}

// countingBody tracks bytes read and reports them once on Close.
type countingBody struct {
	io.ReadCloser
	read    int64
	closed  bool
	onClose func(int64)
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.read += int64(n)
	return n, err
}

func (b *countingBody) Close() error {
	err := b.ReadCloser.Close()
	if !b.closed {
		b.closed = true
		b.onClose(b.read)
	}
	return err
}
