package service

// MintRequest is the decoded mint-endpoint payload plus request provenance.
type MintRequest struct {
	// Token is the raw upstream OIDC token, unverified at this point.
	Token string

	// RemoteIP is the caller's address, used to reset registration rate
	// limits when a pending publisher is successfully reified.
	RemoteIP string
}

// MintResponse is the successful mint result.
type MintResponse struct {
	// Token is the serialized upload credential.
	Token string

	// Expires is the credential's expiry as a Unix timestamp.
	Expires int64
}
