package publishers

import (
	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

// GoogleIssuerURL is the issuer for Google Cloud service account tokens.
const GoogleIssuerURL = "https://accounts.google.com"

var googleSpec = core.KindSpec{
	Kind: core.KindGoogle,
	RequiredVerifiable: []string{
		"email", "email_verified",
	},
	OptionalVerifiable: []string{"sub", "jti"},
	Unchecked:          []string{"azp", "google"},
}

// GooglePublisher authorizes a service account identified by email. Subject
// is an optional second factor: when set, the token's sub claim must match it
// exactly; when empty, any subject is accepted.
type GooglePublisher struct {
	id string

	Email   string
	Subject string
}

func NewGooglePublisher(email, subject string) *GooglePublisher {
	return &GooglePublisher{Email: email, Subject: subject}
}

func (p *GooglePublisher) Kind() core.Kind { return core.KindGoogle }
func (p *GooglePublisher) ID() string      { return p.id }
func (p *GooglePublisher) String() string  { return p.Email }

// checkOptionalSubject: an empty expected subject accepts anything, a set one
// requires presence and exact equality.
func checkOptionalSubject(expected string, actual any, _ *core.CheckContext) error {
	if expected == "" {
		return nil
	}
	sub, ok := actual.(string)
	if !ok {
		return &core.CheckFailedError{Reason: "sub claim is missing"}
	}
	if sub != expected {
		return &core.CheckFailedError{Reason: "subject does not match this publisher"}
	}
	return nil
}

func (p *GooglePublisher) ClaimChecks() []core.ClaimCheck {
	return []core.ClaimCheck{
		{Name: "email", Expected: p.Email, Check: StrictEquals},
		{Name: "email_verified", Expected: "true", Check: Invariant(true)},
		{Name: "sub", Expected: p.Subject, Check: checkOptionalSubject, Optional: true},
		{Name: "jti", Check: UnusedTokenID, Optional: true},
	}
}

func (p *GooglePublisher) VerifyClaims(claims core.ClaimSet, svc core.ReplayChecker) error {
	return verifyClaimChecks(p.ClaimChecks(), claims, svc)
}

// PublisherURL is empty: a service account email does not map to a browsable
// page.
func (p *GooglePublisher) PublisherURL(core.ClaimSet) string { return "" }

func (p *GooglePublisher) VerifyURL(string) bool { return false }

func (p *GooglePublisher) IdentityAttributes() map[string]string {
	return map[string]string{
		"email":   p.Email,
		"subject": p.Subject,
	}
}

func googleFromRecord(rec core.PublisherRecord) *GooglePublisher {
	return &GooglePublisher{
		id:      rec.ID,
		Email:   rec.Attrs["email"],
		Subject: rec.Attrs["subject"],
	}
}

// lookupGoogle queries by email alone, then applies subject specificity the
// same way environment specificity works elsewhere: a publisher pinned to the
// token's sub wins over one with no subject constraint.
func lookupGoogle(store core.PublisherStore, pending bool, claims core.ClaimSet, _ string) (core.Publisher, error) {
	email := claims.String("email")
	if email == "" {
		return nil, &core.PublisherNotFoundError{Reason: "missing email claim"}
	}

	recs, err := store.Find(core.KindGoogle, pending, map[string]string{"email": email})
	if err != nil {
		return nil, err
	}

	var selected *core.PublisherRecord
	if sub := claims.String("sub"); sub != "" {
		for i := range recs {
			if recs[i].Attrs["subject"] == sub {
				selected = &recs[i]
				break
			}
		}
	}
	if selected == nil {
		for i := range recs {
			if recs[i].Attrs["subject"] == "" {
				selected = &recs[i]
				break
			}
		}
	}
	if selected == nil {
		return nil, &core.PublisherNotFoundError{Reason: "no publisher registered for this service account"}
	}
	if pending {
		return pendingGoogleFromRecord(*selected), nil
	}
	return googleFromRecord(*selected), nil
}

// PendingGooglePublisher is a GooglePublisher registered before its target
// project exists.
type PendingGooglePublisher struct {
	GooglePublisher

	projectName string
	addedBy     string
}

func NewPendingGooglePublisher(projectName, addedBy, email, subject string) *PendingGooglePublisher {
	return &PendingGooglePublisher{
		GooglePublisher: *NewGooglePublisher(email, subject),
		projectName:     projectName,
		addedBy:         addedBy,
	}
}

func (p *PendingGooglePublisher) TargetProjectName() string { return p.projectName }
func (p *PendingGooglePublisher) AddedBy() string           { return p.addedBy }

func (p *PendingGooglePublisher) Reify(store core.PublisherStore) (core.Publisher, error) {
	return reifyPending(store, core.KindGoogle, p.id, p.IdentityAttributes(),
		func(rec core.PublisherRecord) core.Publisher { return googleFromRecord(rec) })
}

func pendingGoogleFromRecord(rec core.PublisherRecord) *PendingGooglePublisher {
	return &PendingGooglePublisher{
		GooglePublisher: *googleFromRecord(rec),
		projectName:     rec.ProjectName,
		addedBy:         rec.AddedBy,
	}
}
