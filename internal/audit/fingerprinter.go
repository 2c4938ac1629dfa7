package audit

import (
	"crypto/sha256"
	"encoding/base64"
)

// Fingerprint derives a stable, non-reversible identifier for a minted
// credential so audit entries can be correlated with uploads without ever
// logging the credential itself.
func Fingerprint(credential string) string {
	hash := sha256.Sum256([]byte(credential))
	return base64.StdEncoding.EncodeToString(hash[:])
}
