package lmnt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

const userAgent = "lmnt-go/1.0"

// httpClient handles HTTP communication with the LMNT API.
type httpClient struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	maxRetries int
	logger     *slog.Logger
}

// newHTTPClient creates a new HTTP client.
func newHTTPClient(cfg *clientConfig) *httpClient {
	return &httpClient{
		client:     cfg.httpClient,
		baseURL:    cfg.baseURL,
		apiKey:     cfg.apiKey,
		maxRetries: cfg.maxRetries,
		logger:     cfg.logger,
	}
}

// call describes one API request.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	accept string
}

// request makes a JSON request with retry support and decodes the response
// into result when it is non-nil.
func (h *httpClient) request(ctx context.Context, c call, result any) error {
	data, err := h.requestBytes(ctx, c)
	if err != nil {
		return err
	}
	if result == nil || len(data) == 0 {
		return nil
	}
	return decodeJSON(c.op, data, result)
}

func decodeJSON(op string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return protocolError(op, err, "unmarshal response")
	}
	return nil
}

// requestBytes makes a request with retry support and returns the raw body.
func (h *httpClient) requestBytes(ctx context.Context, c call) ([]byte, error) {
	if h.apiKey == "" {
		return nil, &Error{Kind: KindConfiguration, Op: c.op, Err: ErrMissingAPIKey}
	}

	var bodyData []byte
	if c.body != nil {
		var err error
		bodyData, err = json.Marshal(c.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s, ...
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		data, err := h.doRequest(ctx, c, bodyData)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		if apiErr, ok := AsError(err); !ok || !(apiErr.Retryable() || apiErr.Kind == KindConnection) {
			return nil, err
		}
		h.logger.Debug("lmnt: retrying request", "op", c.op, "attempt", attempt+1, "error", err)
	}

	return nil, lastErr
}

// doRequest performs a single HTTP request.
func (h *httpClient) doRequest(ctx context.Context, c call, bodyData []byte) ([]byte, error) {
	var bodyReader io.Reader
	if bodyData != nil {
		bodyReader = bytes.NewReader(bodyData)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, h.url(c.path, c.query), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	h.setHeaders(req)
	if bodyData != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accept != "" {
		req.Header.Set("Accept", c.accept)
	}

	h.logger.Debug("lmnt: request", "op", c.op, "method", c.method, "path", c.path)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, connectionError(c.op, err)
	}
	defer resp.Body.Close()

	return h.handleResponse(resp, c.op)
}

// requestStream makes a POST request whose response body is handed to the
// caller unread. Streamed requests are not retried.
func (h *httpClient) requestStream(ctx context.Context, c call) (io.ReadCloser, error) {
	if h.apiKey == "" {
		return nil, &Error{Kind: KindConfiguration, Op: c.op, Err: ErrMissingAPIKey}
	}

	var bodyReader io.Reader
	if c.body != nil {
		data, err := json.Marshal(c.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, h.url(c.path, c.query), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	h.setHeaders(req)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accept != "" {
		req.Header.Set("Accept", c.accept)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, connectionError(c.op, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, connectionError(c.op, err)
		}
		return nil, parseError(body, resp.StatusCode, c.op)
	}

	return resp.Body, nil
}

// formFile is one file part of a multipart upload.
type formFile struct {
	field    string
	filename string
	reader   io.Reader
}

// upload sends a multipart form. The body is streamed through an io.Pipe so
// files are never loaded into memory; for the same reason uploads are not
// retried.
func (h *httpClient) upload(ctx context.Context, op, path string, fields map[string]string, files []formFile) ([]byte, error) {
	if h.apiKey == "" {
		return nil, &Error{Kind: KindConfiguration, Op: op, Err: ErrMissingAPIKey}
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		err := writeForm(writer, fields, files)
		pw.CloseWithError(err)
		errCh <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url(path, nil), pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}

	h.setHeaders(req)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	h.logger.Debug("lmnt: upload", "op", op, "path", path, "files", len(files))

	resp, err := h.client.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		<-errCh
		return nil, connectionError(op, err)
	}
	defer resp.Body.Close()

	data, respErr := h.handleResponse(resp, op)
	// The server may answer before reading the whole form; unblock the writer.
	pr.Close()
	writeErr := <-errCh
	if respErr != nil {
		return nil, respErr
	}
	if writeErr != nil && !errors.Is(writeErr, io.ErrClosedPipe) {
		return nil, writeErr
	}
	return data, nil
}

func writeForm(w *multipart.Writer, fields map[string]string, files []formFile) error {
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return fmt.Errorf("write field %s: %w", key, err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, f.reader); err != nil {
			return fmt.Errorf("copy file %s: %w", f.filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func (h *httpClient) url(path string, query url.Values) string {
	u := h.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// setHeaders sets common headers for API requests.
func (h *httpClient) setHeaders(req *http.Request) {
	req.Header.Set("X-API-Key", h.apiKey)
	req.Header.Set("User-Agent", userAgent)
}

// handleResponse reads the body and maps error statuses to service errors.
func (h *httpClient) handleResponse(resp *http.Response, op string) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, connectionError(op, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, parseError(body, resp.StatusCode, op)
	}
	return body, nil
}

// parseError builds a service error from an error response body. The
// message is taken from an "error" or "message" key when present.
func parseError(body []byte, status int, op string) error {
	msg := "Unknown error; see status code for hints on what went wrong."

	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case len(payload.Error) > 0:
			var s string
			if json.Unmarshal(payload.Error, &s) == nil {
				msg = s
			} else {
				msg = string(payload.Error)
			}
		case payload.Message != "":
			msg = payload.Message
		}
	} else if text := bytes.TrimSpace(body); len(text) > 0 {
		msg = truncate(text)
	}

	return &Error{
		Kind:       KindService,
		StatusCode: status,
		Message:    msg,
		Op:         op,
	}
}
