package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	apperrors "github.com/barbmarcio/megastore-search/pkg/errors"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 1 << 20

// DownstreamErrorResponse is the error envelope written by httputil.WriteError.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response and turns it
// into an error. A structured envelope keeps the downstream code and
// message; any other 5xx becomes Unavailable and any other 4xx a plain error
// carrying the raw body.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var env DownstreamErrorResponse
	if json.Unmarshal(raw, &env) == nil && env.Error != nil {
		return fromEnvelope(resp.StatusCode, env.Error.Code, fmt.Sprintf("%s: %s", serviceName, env.Error.Message))
	}

	summary := fmt.Sprintf("%s returned status %d", serviceName, resp.StatusCode)
	if resp.StatusCode >= http.StatusInternalServerError {
		return apperrors.Unavailable(summary, fmt.Errorf("%s", raw))
	}
	return fmt.Errorf("%s: %s", summary, raw)
}

func fromEnvelope(status int, code, message string) error {
	switch {
	case status == http.StatusNotFound:
		return &apperrors.AppError{Code: "NOT_FOUND", Message: message, Status: status, Err: apperrors.ErrNotFound}
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(message)
	case status >= http.StatusInternalServerError:
		return apperrors.Unavailable(message, fmt.Errorf("status %d (%s)", status, code))
	default:
		return &apperrors.AppError{Code: code, Message: message, Status: status}
	}
}

// GetJSON GETs url through d and decodes a 2xx JSON body into target.
func GetJSON(ctx context.Context, d Doer, url, serviceName string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("create GET request: %w", err)
	}
	return doJSON(ctx, d, req, serviceName, target)
}

// PostJSON POSTs body as JSON through d, with a bearer token when token is
// set, and decodes a 2xx response into target. A nil target discards it.
func PostJSON(ctx context.Context, d Doer, url, serviceName, token string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", serviceName, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doJSON(ctx, d, req, serviceName, target)
}

func doJSON(ctx context.Context, d Doer, req *http.Request, serviceName string, target any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := d.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s response: %w", serviceName, err)
	}
	return nil
}
