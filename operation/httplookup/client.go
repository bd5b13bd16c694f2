// Package httplookup resolves fueling operations from the operations
// service over HTTP.
package httplookup

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xraph/fuelledger/operation"
)

var _ operation.Lookup = (*Client)(nil)

// Config configures the operations service client.
type Config struct {
	BaseURL string        `json:"base_url" mapstructure:"base_url" yaml:"base_url"`
	Token   string        `json:"token"    mapstructure:"token"    yaml:"token"`
	Timeout time.Duration `json:"timeout"  mapstructure:"timeout"  yaml:"timeout"`
}

// Client calls POST {BaseURL}/operations/lookup with all IDs in one request.
type Client struct {
	http *resty.Client
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}

	return &Client{http: rc}
}

type lookupRequest struct {
	IDs []string `json:"ids"`
}

type lookupResponse struct {
	Operations []*operation.Operation `json:"operations"`
}

type apiError struct {
	Message string `json:"message"`
}

// GetOperations implements operation.Lookup.
func (c *Client) GetOperations(ctx context.Context, ids []string) (map[string]*operation.Operation, error) {
	ids = operation.Dedupe(ids)
	found := make(map[string]*operation.Operation, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	result := new(lookupResponse)
	apiErr := new(apiError)

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(lookupRequest{IDs: ids}).
		SetResult(result).
		SetError(apiErr).
		Post("/operations/lookup")
	if err != nil {
		return nil, fmt.Errorf("httplookup: lookup operations: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("httplookup: lookup operations: status %d: %s", resp.StatusCode(), apiErr.Message)
	}

	for _, op := range result.Operations {
		if op != nil {
			found[op.ID] = op
		}
	}
	return found, nil
}
