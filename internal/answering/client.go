// Package answering implements the HTTP client for the WhoKnows answering
// service and the error taxonomy for everything that can go wrong on the way.
package answering

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/whoknows-ai/whoknows-go/internal/chat"
	"github.com/whoknows-ai/whoknows-go/internal/config"
	"github.com/whoknows-ai/whoknows-go/internal/logger"
)

// Answer is one successful reply from the answering service.
type Answer struct {
	Message    string           `json:"message"`
	Sources    []chat.Source    `json:"sources"`
	Confidence *chat.Confidence `json:"confidence,omitempty"`
}

// Health is the reply of the service's health endpoint.
type Health struct {
	Status       string `json:"status"`
	SearchEngine string `json:"search_engine"`
}

// Stats is the reply of the service's statistics endpoint. The totals are
// only populated when the vector index is loaded.
type Stats struct {
	SearchMode     string `json:"search_mode"`
	IndexLoaded    bool   `json:"index_loaded"`
	TotalChunks    int    `json:"total_chunks"`
	TotalDocuments int    `json:"total_documents"`
}

// Client talks to the answering service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the configured service endpoint.
func NewClient(cfg config.ServiceConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type askRequest struct {
	Query string `json:"query"`
}

// Ask submits a query and returns the service's answer. Failures are always
// *Error values carrying the taxonomy code.
func (c *Client) Ask(ctx context.Context, query string) (*Answer, error) {
	payload, err := json.Marshal(askRequest{Query: query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{
			Code:    CodeUnreachable,
			Message: "cannot reach the answering service",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var ans Answer
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		return nil, &Error{
			Code:    CodeBadReply,
			Status:  resp.StatusCode,
			Message: "answering service reply is not valid JSON",
			Err:     err,
		}
	}
	if ans.Message == "" {
		return nil, &Error{
			Code:    CodeBadReply,
			Status:  resp.StatusCode,
			Message: "answering service reply has no message",
		}
	}
	return &ans, nil
}

// Health asks the service whether its search engine is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, "/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Stats fetches the service's index statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := c.getJSON(ctx, "/api/stats", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{
			Code:    CodeUnreachable,
			Message: "cannot reach the answering service",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{
			Code:    CodeBadReply,
			Status:  resp.StatusCode,
			Message: "answering service reply is not valid JSON",
			Err:     err,
		}
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	logger.L.Debug("answering service returned an error",
		"status", resp.StatusCode,
		"path", resp.Request.URL.Path,
		"body", string(body))

	// The service usually explains itself: {"error": ..., "message": ...}.
	// Carry that through so the banner can show it.
	msg := fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	var detail struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &detail); err == nil {
		switch {
		case detail.Message != "":
			msg = fmt.Sprintf("%s (status %d)", detail.Message, resp.StatusCode)
		case detail.Error != "":
			msg = fmt.Sprintf("%s (status %d)", detail.Error, resp.StatusCode)
		}
	}
	return &Error{
		Code:    CodeService,
		Status:  resp.StatusCode,
		Message: msg,
	}
}
