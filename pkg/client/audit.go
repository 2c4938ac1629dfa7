package client

import (
	"context"

	"github.com/wheelhouse-index/wheelhouse/internal/api"
	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

type ListAuditsOpts struct {
	Limit uint

	CorrelationID string
	PublisherID   string
	Fingerprint   string
}

// ListAudits retrieves the latest audit entries from the server, limited to the specified number.
func (c *Client) ListAudits(ctx context.Context, opts ListAuditsOpts) ([]core.AuditEntry, string, error) {
	ub := c.url().setPath(api.ListAuditsRoute)
	if opts.Limit > 0 {
		ub = ub.addQueryParam("limit", opts.Limit)
	}
	if opts.CorrelationID != "" {
		ub = ub.addQueryParam("correlation_id", opts.CorrelationID)
	}
	if opts.PublisherID != "" {
		ub = ub.addQueryParam("publisher_id", opts.PublisherID)
	}
	if opts.Fingerprint != "" {
		ub = ub.addQueryParam("fingerprint", opts.Fingerprint)
	}
	var resp []core.AuditEntry
	correlation, err := c.get(ctx, ub.build(), &resp)
	return resp, correlation, err
}

// ListActiveCredentials retrieves the currently active upload credentials.
func (c *Client) ListActiveCredentials(ctx context.Context) ([]core.CredentialMetadata, string, error) {
	var resp []core.CredentialMetadata
	correlation, err := c.get(ctx, c.url().
		setPath(api.ListCredentialsRoute).
		build(), &resp)
	return resp, correlation, err
}
