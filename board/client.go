package board

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"wishboard/domain"
)

const wishesPath = "/api/wishes"

// APIError is a non-2xx answer from the wishes API.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("wishes api: %d", e.StatusCode)
	if e.Message != "" {
		msg += " " + e.Message
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

type apiErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// client wraps http.Client with the JSON calls of the wishes API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, hc *http.Client) *client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *client) list(ctx context.Context) ([]domain.Wish, error) {
	var wishes []domain.Wish
	if err := c.do(ctx, http.MethodGet, nil, nil, &wishes); err != nil {
		return nil, err
	}
	return wishes, nil
}

func (c *client) create(ctx context.Context, text string) (domain.Wish, error) {
	var w domain.Wish
	header := http.Header{"Idempotency-Key": []string{uuid.NewString()}}
	err := c.do(ctx, http.MethodPost, header, map[string]string{"text": text}, &w)
	return w, err
}

func (c *client) updateStatus(ctx context.Context, id string, status domain.Status) error {
	return c.do(ctx, http.MethodPut, nil, map[string]string{"id": id, "status": string(status)}, nil)
}

func (c *client) delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, nil, map[string]string{"id": id}, nil)
}

func (c *client) do(ctx context.Context, method string, header http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+wishesPath, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb apiErrorBody
		if sonic.Unmarshal(data, &eb) == nil {
			apiErr.Message = eb.Error
			apiErr.Details = eb.Details
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
