package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wheelhouse-index/wheelhouse/internal/audit"
	"github.com/wheelhouse-index/wheelhouse/internal/core"
	"github.com/wheelhouse-index/wheelhouse/internal/metrics"
	"github.com/wheelhouse-index/wheelhouse/internal/notify"
	"github.com/wheelhouse-index/wheelhouse/internal/oidc"
	"github.com/wheelhouse-index/wheelhouse/internal/publishers"
	"github.com/wheelhouse-index/wheelhouse/internal/ratelimit"
	"github.com/wheelhouse-index/wheelhouse/internal/store"
)

const testMintAudience = "wheelhouse"

type mintHarness struct {
	svc      *MintService
	db       *store.Store
	auditor  *audit.InMemoryAuditor
	notifier *notify.MemoryNotifier
	limiter  *ratelimit.Limiter
}

// newMintHarness wires a MintService against a real SQLite store and the
// unverified-signature OIDC service, so tokens can be hand-signed.
func newMintHarness(t *testing.T) *mintHarness {
	t.Helper()

	registry, err := publishers.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	db, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	kv := store.NewMemoryKV()
	noop := metrics.NewNoopMetrics()
	serviceFor := func(issuerURL string) oidc.Service {
		return oidc.NewNullPublisherService(issuerURL, testMintAudience, registry, db, kv, noop)
	}
	minter, err := NewMacaroonMinter("https://wheels.example.org", []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewMacaroonMinter() error = %v", err)
	}

	h := &mintHarness{
		db:       db,
		auditor:  audit.NewInMemoryAuditor(),
		notifier: notify.NewMemoryNotifier(),
		limiter:  ratelimit.NewLimiter(time.Minute, 5),
	}
	h.svc = NewMintService(registry, serviceFor, testMintAudience,
		db, db, db, minter, h.auditor, noop, h.notifier, h.limiter)
	return h
}

func githubToken(t *testing.T, overrides map[string]any) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":              publishers.GitHubIssuerURL,
		"aud":              testMintAudience,
		"iat":              now.Unix(),
		"nbf":              now.Unix(),
		"exp":              now.Add(5 * time.Minute).Unix(),
		"jti":              "jti-" + t.Name(),
		"sub":              "repo:octo-org/octo-repo:ref:refs/heads/main",
		"repository":       "octo-org/octo-repo",
		"repository_owner": "octo-org",
		"job_workflow_ref": "octo-org/octo-repo/.github/workflows/release.yml@refs/heads/main",
		"event_name":       "push",
		"ref":              "refs/heads/main",
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unverified"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func githubPublisherAttrs() map[string]string {
	return map[string]string{
		"repository_owner":  "octo-org",
		"repository_name":   "octo-repo",
		"workflow_filename": "release.yml",
		"environment":       "",
	}
}

// registerPublisher inserts a concrete GitHub publisher attached to a fresh
// project and returns the publisher ID.
func (h *mintHarness) registerPublisher(t *testing.T, projectName string) string {
	t.Helper()
	pubID, err := h.db.Insert(core.KindGitHub, false, core.PublisherRecord{
		Kind: core.KindGitHub, Attrs: githubPublisherAttrs(),
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	project, err := h.db.Create(projectName, "jane@example.com", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := h.db.AttachProject(pubID, project.ID); err != nil {
		t.Fatalf("AttachProject() error = %v", err)
	}
	return pubID
}

func wantMintCode(t *testing.T, err error, code string) {
	t.Helper()
	var mintErr *MintError
	if !errors.As(err, &mintErr) {
		t.Fatalf("error = %v, want *MintError with code %q", err, code)
	}
	if mintErr.Code != code {
		t.Errorf("error code = %q, want %q", mintErr.Code, code)
	}
}

func TestMintSuccessAndReplay(t *testing.T) {
	h := newMintHarness(t)
	h.registerPublisher(t, "wheels")
	token := githubToken(t, nil)

	before := time.Now()
	res, err := h.svc.Mint(context.Background(), MintRequest{Token: token})
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if !strings.HasPrefix(res.Token, "wheelhouse-") {
		t.Errorf("credential %q lacks the wheelhouse- prefix", res.Token)
	}
	expires := time.Unix(res.Expires, 0)
	if expires.Before(before.Add(14*time.Minute)) || expires.After(before.Add(16*time.Minute)) {
		t.Errorf("Expires = %v, want roughly 15 minutes out", expires)
	}

	creds, err := h.db.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(creds) != 1 {
		t.Errorf("stored %d credentials, want 1", len(creds))
	}

	entries, err := h.auditor.GetRecent(10)
	if err != nil || len(entries) != 1 {
		t.Fatalf("GetRecent() = (%v, %v), want one entry", entries, err)
	}
	if !entries[0].Success || entries[0].Action != "token.mint" || entries[0].Fingerprint == "" {
		t.Errorf("audit entry = %+v, want a successful fingerprinted token.mint", entries[0])
	}

	// Same token again: the jti is burned.
	_, err = h.svc.Mint(context.Background(), MintRequest{Token: token})
	wantMintCode(t, err, CodeTokenReused)
}

func TestMintReplayJustAfterTokenExpiry(t *testing.T) {
	h := newMintHarness(t)
	h.registerPublisher(t, "wheels")

	// A token stays acceptable for a leeway window past its own exp, so the
	// replay record has to cover that window too.
	token := githubToken(t, map[string]any{"exp": time.Now().Add(time.Second).Unix()})
	if _, err := h.svc.Mint(context.Background(), MintRequest{Token: token}); err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	time.Sleep(2 * time.Second)
	_, err := h.svc.Mint(context.Background(), MintRequest{Token: token})
	wantMintCode(t, err, CodeTokenReused)
}

func TestMintFailureCodes(t *testing.T) {
	h := newMintHarness(t)
	h.registerPublisher(t, "wheels")

	t.Run("malformed payload", func(t *testing.T) {
		_, err := h.svc.Mint(context.Background(), MintRequest{Token: "not-a-jwt"})
		wantMintCode(t, err, CodeInvalidPayload)
	})

	t.Run("unknown issuer", func(t *testing.T) {
		token := githubToken(t, map[string]any{"iss": "https://ci.example.com"})
		_, err := h.svc.Mint(context.Background(), MintRequest{Token: token})
		wantMintCode(t, err, CodeUnknownIssuer)
	})

	t.Run("expired token", func(t *testing.T) {
		token := githubToken(t, map[string]any{"exp": time.Now().Add(-time.Hour).Unix()})
		_, err := h.svc.Mint(context.Background(), MintRequest{Token: token})
		wantMintCode(t, err, CodeInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		token := githubToken(t, map[string]any{"aud": "some-other-index"})
		_, err := h.svc.Mint(context.Background(), MintRequest{Token: token})
		wantMintCode(t, err, CodeInvalidToken)
	})

	t.Run("no publisher registered", func(t *testing.T) {
		token := githubToken(t, map[string]any{
			"sub":              "repo:stranger/repo:ref:refs/heads/main",
			"repository":       "stranger/repo",
			"repository_owner": "stranger",
			"job_workflow_ref": "stranger/repo/.github/workflows/ci.yml@refs/heads/main",
		})
		_, err := h.svc.Mint(context.Background(), MintRequest{Token: token})
		wantMintCode(t, err, CodeInvalidPublisher)
	})
}

func TestMintDisabledKind(t *testing.T) {
	h := newMintHarness(t)
	h.registerPublisher(t, "wheels")

	h.svc.SetKindEnabled(core.KindGitHub, false)
	if got := h.svc.DisabledKinds(); len(got) != 1 || got[0] != core.KindGitHub {
		t.Errorf("DisabledKinds() = %v, want [github]", got)
	}

	_, err := h.svc.Mint(context.Background(), MintRequest{Token: githubToken(t, nil)})
	wantMintCode(t, err, CodeNotEnabled)

	h.svc.SetKindEnabled(core.KindGitHub, true)
	if _, err := h.svc.Mint(context.Background(), MintRequest{Token: githubToken(t, nil)}); err != nil {
		t.Errorf("Mint() after re-enabling error = %v", err)
	}
}

func TestMintPublisherWithoutProjects(t *testing.T) {
	h := newMintHarness(t)
	if _, err := h.db.Insert(core.KindGitHub, false, core.PublisherRecord{
		Kind: core.KindGitHub, Attrs: githubPublisherAttrs(),
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	_, err := h.svc.Mint(context.Background(), MintRequest{Token: githubToken(t, nil)})
	wantMintCode(t, err, CodeInvalidPublisher)
}

func TestMintReifiesPendingPublisher(t *testing.T) {
	h := newMintHarness(t)

	if _, err := h.db.Insert(core.KindGitHub, true, core.PublisherRecord{
		Kind: core.KindGitHub, Attrs: githubPublisherAttrs(),
		ProjectName: "New.Wheel", AddedBy: "jane@example.com",
	}); err != nil {
		t.Fatalf("Insert() pending error = %v", err)
	}
	// A sibling registration racing for the same name through another kind.
	if _, err := h.db.Insert(core.KindBuildkite, true, core.PublisherRecord{
		Kind:  core.KindBuildkite,
		Attrs: map[string]string{"organization_slug": "acme", "pipeline_slug": "wheels"},
		ProjectName: "new-wheel", AddedBy: "joe@example.com",
	}); err != nil {
		t.Fatalf("Insert() sibling error = %v", err)
	}

	// Exhaust jane's registration budget; reification must clear it.
	for i := 0; i < 5; i++ {
		h.limiter.Hit("jane@example.com")
	}
	if h.limiter.Test("jane@example.com") {
		t.Fatal("budget should be exhausted before the mint")
	}

	res, err := h.svc.Mint(context.Background(), MintRequest{Token: githubToken(t, nil), RemoteIP: "192.0.2.7"})
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if res.Token == "" {
		t.Error("Mint() returned an empty credential")
	}

	project, err := h.db.GetByNormalizedName("new-wheel")
	if err != nil || project == nil {
		t.Fatalf("project was not created: (%v, %v)", project, err)
	}
	if project.Name != "New.Wheel" || project.CreatedBy != "jane@example.com" {
		t.Errorf("project = %+v, want New.Wheel created by jane", project)
	}

	concrete, err := h.db.Find(core.KindGitHub, false, githubPublisherAttrs())
	if err != nil || len(concrete) != 1 {
		t.Fatalf("concrete publisher rows = (%v, %v), want exactly one", concrete, err)
	}
	ids, err := h.db.ProjectIDs(concrete[0].ID)
	if err != nil || len(ids) != 1 || ids[0] != project.ID {
		t.Errorf("ProjectIDs() = (%v, %v), want the new project", ids, err)
	}

	for _, kind := range []core.Kind{core.KindGitHub, core.KindBuildkite} {
		recs, err := h.db.Find(kind, true, nil)
		if err != nil {
			t.Fatalf("Find() pending %s error = %v", kind, err)
		}
		if len(recs) != 0 {
			t.Errorf("%d pending %s rows survive reification, want 0", len(recs), kind)
		}
	}

	notifications := h.notifier.Notifications()
	if len(notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifications))
	}
	if notifications[0].Kind != "pending-publisher-invalidated" || notifications[0].AddedBy != "joe@example.com" {
		t.Errorf("notification = %+v, want joe's registration invalidated", notifications[0])
	}

	if !h.limiter.Test("jane@example.com") {
		t.Error("reification should clear the registrant's rate-limit budget")
	}

	entries, _ := h.auditor.GetRecent(1)
	if len(entries) != 1 || !entries[0].Reified {
		t.Errorf("audit entry = %+v, want Reified", entries)
	}
}

func TestMintPendingPublisherProjectExists(t *testing.T) {
	h := newMintHarness(t)

	if _, err := h.db.Create("wheels", "someone-else@example.com", ""); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := h.db.Insert(core.KindGitHub, true, core.PublisherRecord{
		Kind: core.KindGitHub, Attrs: githubPublisherAttrs(),
		ProjectName: "wheels", AddedBy: "jane@example.com",
	}); err != nil {
		t.Fatalf("Insert() pending error = %v", err)
	}

	_, err := h.svc.Mint(context.Background(), MintRequest{Token: githubToken(t, nil)})
	wantMintCode(t, err, CodeProjectExists)

	recs, err := h.db.Find(core.KindGitHub, true, nil)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("stale pending publisher survives, want it deleted")
	}
}

func TestMintSuggestsEnvironmentConstraint(t *testing.T) {
	h := newMintHarness(t)
	h.registerPublisher(t, "wheels")

	token := githubToken(t, map[string]any{"environment": "production"})
	if _, err := h.svc.Mint(context.Background(), MintRequest{Token: token}); err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	notifications := h.notifier.Notifications()
	if len(notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifications))
	}
	n := notifications[0]
	if n.Kind != "environment-constraint-suggested" || n.Environment != "production" {
		t.Errorf("notification = %+v, want an environment suggestion for production", n)
	}
}

func TestMintNoEnvironmentNudgeForSharedPublisher(t *testing.T) {
	h := newMintHarness(t)
	pubID := h.registerPublisher(t, "wheels")

	// A publisher authorized for more than one project gets no nudge; the
	// suggestion only applies to single-project publishers.
	second, err := h.db.Create("wheels-extra", "jane@example.com", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := h.db.AttachProject(pubID, second.ID); err != nil {
		t.Fatalf("AttachProject() error = %v", err)
	}

	token := githubToken(t, map[string]any{"environment": "production"})
	if _, err := h.svc.Mint(context.Background(), MintRequest{Token: token}); err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if notifications := h.notifier.Notifications(); len(notifications) != 0 {
		t.Errorf("got %d notifications, want none for a shared publisher", len(notifications))
	}
}
