package client

import (
	"context"

	"github.com/wheelhouse-index/wheelhouse/internal/api"
	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// ListIssuers retrieves the accepted issuer URLs and kill-switch state.
func (c *Client) ListIssuers(ctx context.Context) (*api.IssuersResponse, string, error) {
	var resp api.IssuersResponse
	correlation, err := c.get(ctx, c.url().
		setPath(api.ListIssuersRoute).
		build(), &resp)
	return &resp, correlation, err
}

// ToggleIssuerKind flips the kill switch for one publisher family.
func (c *Client) ToggleIssuerKind(ctx context.Context, kind core.Kind, enabled bool) (string, error) {
	var resp api.ToggleIssuerResponse
	return c.post(ctx, c.url().
		setPath(api.ToggleIssuerKindRoute).
		setPathParam("kind", string(kind)).
		build(), api.ToggleIssuerPayload{Enabled: enabled}, &resp)
}
