package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pavel-fokin/form-data/internal/form"
	"github.com/pavel-fokin/form-data/internal/formdata"
)

// maxResponseSize bounds how much of a response body is kept
const maxResponseSize = 1 << 20

// Client submits forms as multipart/form-data POST requests
type Client struct {
	http   *http.Client
	token  string
	opener form.Opener
}

// New creates a client. A non-empty token is sent as a bearer token.
func New(token string, timeout time.Duration, opener form.Opener) *Client {
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: &loggingTransport{next: http.DefaultTransport},
		},
		token:  token,
		opener: opener,
	}
}

// Response describes a completed submission
type Response struct {
	Status      int
	ContentType string
	Size        int64
	Body        []byte
}

// StatusError is returned when the server answers with a non-2xx status
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// Submit streams the form to url. The document is encoded while the request
// is being sent and never held in memory as a whole.
func (c *Client) Submit(ctx context.Context, url string, f form.Form) (*Response, error) {
	pr, pw := io.Pipe()
	counter := &countingWriter{w: pw}

	doc, err := formdata.New(counter, formdata.WithOpener(c.opener))
	if err != nil {
		pw.Close()
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pw.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", doc.ContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	encoded := make(chan error, 1)
	go func() {
		err := f.Encode(doc, c.opener)
		if err == nil {
			_, err = doc.Finish()
		}
		pw.CloseWithError(err)
		encoded <- err
	}()

	resp, err := c.http.Do(req)
	// The server may answer before reading the whole body.
	pr.Close()
	encErr := <-encoded
	if encErr != nil && !errors.Is(encErr, io.ErrClosedPipe) {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to encode form: %w", encErr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	result := &Response{
		Status:      resp.StatusCode,
		ContentType: doc.ContentType(),
		Size:        counter.n,
		Body:        body,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return result, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// loggingTransport logs HTTP requests with structured logging
type loggingTransport struct {
	next http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := t.next.RoundTrip(req)

	duration := time.Since(start)
	if err != nil {
		slog.Error("HTTP request failed",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return nil, err
	}

	slog.Info("HTTP request",
		"method", req.Method,
		"url", req.URL.Redacted(),
		"content_type", req.Header.Get("Content-Type"),
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)
	return resp, nil
}
