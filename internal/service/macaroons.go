package service

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/macaroon.v2"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

const (
	// credentialPrefix makes minted credentials recognizable in secret
	// scanners and support tickets.
	credentialPrefix = "wheelhouse-"

	// credentialTTL bounds how long a minted upload credential stays valid.
	credentialTTL = 15 * time.Minute
)

// MacaroonMinter issues scoped, expiring upload credentials as serialized
// macaroons with first-party caveats.
type MacaroonMinter struct {
	location string
	rootKey  []byte
}

func NewMacaroonMinter(location string, rootKey []byte) (*MacaroonMinter, error) {
	if len(rootKey) < 32 {
		return nil, fmt.Errorf("macaroon root key must be at least 32 bytes, got %d", len(rootKey))
	}
	return &MacaroonMinter{location: location, rootKey: rootKey}, nil
}

// Mint builds the credential for a verified publisher. Caveats bind it to the
// publisher, the projects it may touch, and the validity window; verifiers
// check all three on upload.
func (m *MacaroonMinter) Mint(publisher core.Publisher, projectIDs []string, now time.Time) (string, core.CredentialMetadata, error) {
	now = now.UTC()
	meta := core.CredentialMetadata{
		ID: uuid.NewString(),
		// Display-only; never parsed.
		Description: fmt.Sprintf("OpenID token: %s (%s)", publisher.String(), now.Format(time.RFC3339)),
		PublisherID: publisher.ID(),
		ProjectIDs:  projectIDs,
		NotBefore:   now,
		ExpiresAt:   now.Add(credentialTTL),
	}

	mac, err := macaroon.New(m.rootKey, []byte(meta.ID), m.location, macaroon.V2)
	if err != nil {
		return "", core.CredentialMetadata{}, fmt.Errorf("creating macaroon: %w", err)
	}

	caveats := []string{
		"publisher_id = " + publisher.ID(),
		"project_ids = " + strings.Join(projectIDs, ","),
		fmt.Sprintf("not_before = %d", meta.NotBefore.Unix()),
		fmt.Sprintf("expires = %d", meta.ExpiresAt.Unix()),
	}
	for _, caveat := range caveats {
		if err := mac.AddFirstPartyCaveat([]byte(caveat)); err != nil {
			return "", core.CredentialMetadata{}, fmt.Errorf("adding caveat: %w", err)
		}
	}

	raw, err := mac.MarshalBinary()
	if err != nil {
		return "", core.CredentialMetadata{}, fmt.Errorf("serializing macaroon: %w", err)
	}

	return credentialPrefix + base64.RawURLEncoding.EncodeToString(raw), meta, nil
}
