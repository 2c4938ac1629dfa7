package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// IssuerSettings is the validated shape of one issuers: section entry.
type IssuerSettings struct {
	Enabled       bool
	CustomIssuers []string
}

// ValidateIssuers checks the issuers: config section: every key must be a
// known publisher kind, and custom issuer URLs (GitLab only) must be https
// and unique.
func ValidateIssuers(issuers map[string]IssuerSettings) error {
	seen := make(map[string]struct{})
	for kindName, settings := range issuers {
		kind, err := core.ParseKind(kindName)
		if err != nil {
			return err
		}

		if len(settings.CustomIssuers) > 0 && kind != core.KindGitLab {
			return fmt.Errorf("issuer family '%s' does not support custom issuers", kindName)
		}

		for _, issuer := range settings.CustomIssuers {
			issuer = strings.TrimSuffix(issuer, "/")
			if _, dup := seen[issuer]; dup {
				return fmt.Errorf("custom issuer '%s' is not unique", issuer)
			}
			seen[issuer] = struct{}{}

			u, err := url.Parse(issuer)
			if err != nil {
				return fmt.Errorf("parsing custom issuer '%s': %w", issuer, err)
			}
			if u.Scheme != "https" {
				return fmt.Errorf("custom issuer '%s' must use https", issuer)
			}
			if u.Host == "" {
				return fmt.Errorf("custom issuer '%s' has no host", issuer)
			}
		}
	}
	return nil
}
