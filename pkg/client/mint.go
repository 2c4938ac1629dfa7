package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/wheelhouse-index/wheelhouse/internal/api"
)

// MintFailedError carries the structured error list from a rejected mint.
type MintFailedError struct {
	Message string
	Errors  []api.MintErrorDetail
}

func (e MintFailedError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, detail := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", detail.Code, detail.Description))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

// MintToken exchanges an upstream OIDC token for an upload credential.
func (c *Client) MintToken(ctx context.Context, oidcToken string) (*api.MintSuccessResponse, string, error) {
	payload := api.MintPayload{Token: oidcToken}
	marshalled, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshalling payload: %w", err)
	}

	// done manually, the mint endpoint has its own error shape that the
	// helper methods cannot parse.
	req, err := http.NewRequestWithContext(ctx, "POST", c.url().
		setPath(api.MintTokenRoute).
		build(), bytes.NewReader(marshalled))
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, correlationFromResponse(resp), fmt.Errorf("connection failed: %w", err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode == http.StatusUnprocessableEntity {
		var failure api.MintFailureResponse
		if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
			return nil, correlationFromResponse(resp), fmt.Errorf("decoding error response: %w", err)
		}
		return nil, correlationFromResponse(resp), MintFailedError{
			Message: failure.Message,
			Errors:  failure.Errors,
		}
	}
	if resp.StatusCode >= 400 {
		return nil, correlationFromResponse(resp), parseErrorResponse(resp)
	}

	var result api.MintSuccessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, correlationFromResponse(resp), fmt.Errorf("decoding response: %w", err)
	}

	return &result, correlationFromResponse(resp), nil
}

// Audience returns the audience value CI plugins must request tokens for.
func (c *Client) Audience(ctx context.Context) (string, string, error) {
	var resp api.AudienceResponse
	correlation, err := c.get(ctx, c.url().
		setPath(api.AudienceRoute).
		build(), &resp)
	return resp.Audience, correlation, err
}
