package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wheelhouse-index/wheelhouse/internal/audit"
	"github.com/wheelhouse-index/wheelhouse/internal/core"
	"github.com/wheelhouse-index/wheelhouse/internal/oidc"
	"github.com/wheelhouse-index/wheelhouse/internal/publishers"
)

// ServiceFactory builds the per-issuer verification service. CircleCI and
// Semaphore issuers are per-organization, so services cannot be enumerated up
// front.
type ServiceFactory func(issuerURL string) oidc.Service

// MintService is the main service that handles the minting process.
type MintService struct {
	registry        *publishers.Registry
	serviceFor      ServiceFactory
	audience        string
	publisherStore  core.PublisherStore
	projectStore    core.ProjectStore
	credentialStore core.CredentialStore
	minter          *MacaroonMinter
	auditor         core.Auditor
	metrics         core.Metrics
	notifier        core.Notifier
	rateLimiter     core.RateLimiter

	mu       sync.RWMutex
	disabled map[core.Kind]bool
}

func NewMintService(
	registry *publishers.Registry,
	serviceFor ServiceFactory,
	audience string,
	publisherStore core.PublisherStore,
	projectStore core.ProjectStore,
	credentialStore core.CredentialStore,
	minter *MacaroonMinter,
	auditor core.Auditor,
	metrics core.Metrics,
	notifier core.Notifier,
	rateLimiter core.RateLimiter,
) *MintService {
	return &MintService{
		registry:        registry,
		serviceFor:      serviceFor,
		audience:        audience,
		publisherStore:  publisherStore,
		projectStore:    projectStore,
		credentialStore: credentialStore,
		minter:          minter,
		auditor:         auditor,
		metrics:         metrics,
		notifier:        notifier,
		rateLimiter:     rateLimiter,
		disabled:        make(map[core.Kind]bool),
	}
}

// Audience returns the audience value upstream workflows must request.
func (s *MintService) Audience() string { return s.audience }

// SetKindEnabled is the per-family admin kill-switch.
func (s *MintService) SetKindEnabled(kind core.Kind, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[kind] = !enabled
}

func (s *MintService) kindEnabled(kind core.Kind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.disabled[kind]
}

// DisabledKinds lists families currently switched off, for the admin API.
func (s *MintService) DisabledKinds() []core.Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Kind
	for kind, off := range s.disabled {
		if off {
			out = append(out, kind)
		}
	}
	return out
}

// Mint exchanges a verified upstream OIDC token for a scoped, short-lived
// upload credential.
func (s *MintService) Mint(ctx context.Context, req MintRequest) (*MintResponse, error) {
	logger := log.Ctx(ctx)
	reqID := core.CorrelationID(ctx)

	auditEntry := core.AuditEntry{
		ID:     reqID,
		Time:   time.Now(),
		Action: "token.mint",
	}
	defer func() {
		if err := s.auditor.Log(auditEntry); err != nil {
			logger.Error().Err(err).Msg("failed to write audit log entry for mint")
		}
	}()

	fail := func(code string, err error) (*MintResponse, error) {
		auditEntry.ErrorCode = code
		auditEntry.Error = err.Error()
		s.metrics.Increment("mint.failed", "code:"+code)
		return nil, mintError(code, err)
	}

	// The issuer claim decides which verification service applies, so it is
	// read before any verification. Nothing else from this decode is trusted.
	issuerURL, err := unverifiedIssuer(req.Token)
	if err != nil {
		return fail(CodeInvalidPayload, fmt.Errorf("malformed token: %w", err))
	}
	auditEntry.Issuer = issuerURL

	kind, known := s.registry.KindForIssuer(issuerURL)
	if !known {
		return fail(CodeUnknownIssuer, fmt.Errorf("unknown token issuer %q", issuerURL))
	}
	auditEntry.PublisherKind = kind.String()

	if !s.kindEnabled(kind) {
		return fail(CodeNotEnabled, fmt.Errorf("%s trusted publishing is temporarily disabled", kind))
	}

	svc := s.serviceFor(issuerURL)
	claims := svc.VerifyJWTSignature(ctx, req.Token)
	if claims == nil {
		return fail(CodeInvalidToken, errors.New("could not verify the supplied token"))
	}

	logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("issuer_url", issuerURL).Str("kind", kind.String())
	})

	var (
		publisher core.Publisher
		reified   bool
	)

	// Pending-publisher path: best effort, anything except token reuse falls
	// through to the concrete lookup.
	publisher, err = s.tryPendingPublisher(ctx, svc, claims, req, &auditEntry)
	var reuse *core.ReusedTokenError
	if errors.As(err, &reuse) {
		return fail(CodeTokenReused, err)
	}
	var existsErr *projectExistsError
	if errors.As(err, &existsErr) {
		return fail(CodeProjectExists, err)
	}
	if err != nil {
		logger.Debug().Err(err).Msg("no usable pending publisher, trying concrete lookup")
	}
	if publisher != nil {
		reified = true
	}

	if publisher == nil {
		publisher, err = svc.FindPublisher(claims, false)
		switch {
		case err == nil:
		case errors.As(err, &reuse):
			return fail(CodeTokenReused, err)
		case errors.Is(err, core.ErrInvalidPublisher):
			return fail(CodeInvalidPublisher, err)
		default:
			auditEntry.Error = err.Error()
			return nil, httpError(http.StatusInternalServerError, err)
		}
	}
	auditEntry.PublisherID = publisher.ID()
	auditEntry.Reified = reified

	projectIDs, err := s.publisherStore.ProjectIDs(publisher.ID())
	if err != nil {
		auditEntry.Error = err.Error()
		return nil, httpError(http.StatusInternalServerError, err)
	}
	if len(projectIDs) == 0 {
		return fail(CodeInvalidPublisher, errors.New("publisher is not authorized for any project"))
	}
	auditEntry.ProjectIDs = projectIDs

	// The jti is recorded only now that the token has fully verified, so a
	// rejected token does not burn its identifier.
	if jti := claims.String("jti"); jti != "" {
		if exp, err := jwt.MapClaims(claims).GetExpirationTime(); err == nil && exp != nil {
			svc.StoreJWTIdentifier(jti, exp.Time)
		}
	}

	serialized, meta, err := s.minter.Mint(publisher, projectIDs, time.Now())
	if err != nil {
		auditEntry.Error = err.Error()
		return nil, httpError(http.StatusInternalServerError, fmt.Errorf("minting failed: %w", err))
	}

	if err := s.credentialStore.Save(ctx, meta); err != nil {
		// The credential is already out; losing its metadata only hurts the
		// admin listing and the sweeper.
		logger.Error().Err(err).Msg("failed to save credential metadata")
	}

	auditEntry.Fingerprint = audit.Fingerprint(serialized)

	s.recordMintEvents(ctx, publisher, claims, projectIDs, meta)
	s.maybeSuggestEnvironment(ctx, publisher, claims, projectIDs)

	auditEntry.Success = true
	s.metrics.Increment("mint.ok", "kind:"+kind.String())

	return &MintResponse{
		Token:   serialized,
		Expires: meta.ExpiresAt.Unix(),
	}, nil
}

// projectExistsError aborts the pending path when the target project name was
// claimed by someone else after registration.
type projectExistsError struct {
	name string
}

func (e *projectExistsError) Error() string {
	return fmt.Sprintf("project %q already exists, the pending publisher has been removed", e.name)
}

// tryPendingPublisher resolves a pending publisher if the claims match one:
// create the project, reify the publisher, attach it, and invalidate sibling
// registrations racing for the same project name. Returns (nil, err) when the
// pending path does not apply.
func (s *MintService) tryPendingPublisher(
	ctx context.Context,
	svc oidc.Service,
	claims core.ClaimSet,
	req MintRequest,
	auditEntry *core.AuditEntry,
) (core.Publisher, error) {
	logger := log.Ctx(ctx)

	found, err := svc.FindPublisher(claims, true)
	if err != nil {
		return nil, err
	}
	pending, ok := found.(core.PendingPublisher)
	if !ok {
		return nil, fmt.Errorf("pending lookup returned non-pending publisher %T", found)
	}

	normalized := core.NormalizeProjectName(pending.TargetProjectName())
	existing, err := s.projectStore.GetByNormalizedName(normalized)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Stale registration: the name was claimed through another route.
		if err := s.publisherStore.Delete(pending.Kind(), true, pending.ID()); err != nil {
			logger.Error().Err(err).Msg("failed to delete stale pending publisher")
		}
		return nil, &projectExistsError{name: pending.TargetProjectName()}
	}

	project, err := s.projectStore.Create(pending.TargetProjectName(), pending.AddedBy(), "")
	if err != nil {
		return nil, fmt.Errorf("creating project %q: %w", pending.TargetProjectName(), err)
	}

	// Siblings lost the race for this name; their registrations can never
	// succeed now.
	siblings, err := s.publisherStore.PendingByProjectName(normalized)
	if err != nil {
		logger.Error().Err(err).Msg("failed to enumerate sibling pending publishers")
		siblings = nil
	}

	concrete, err := svc.ReifyPendingPublisher(pending)
	if err != nil {
		return nil, fmt.Errorf("reifying pending publisher: %w", err)
	}

	if err := s.publisherStore.AttachProject(concrete.ID(), project.ID); err != nil {
		return nil, fmt.Errorf("attaching publisher to project: %w", err)
	}

	for _, sib := range siblings {
		if sib.ID == pending.ID() {
			continue
		}
		if err := s.publisherStore.Delete(sib.Kind, true, sib.ID); err != nil {
			logger.Error().Err(err).Str("pending_id", sib.ID).Msg("failed to delete invalidated pending publisher")
			continue
		}
		s.notifier.PendingPublisherInvalidated(ctx, sib.AddedBy, sib.ProjectName, concrete.String())
	}

	if err := s.projectStore.RecordEvent(core.ProjectEvent{
		ProjectID: project.ID,
		Tag:       core.EventPublisherAdded,
		Time:      time.Now().UTC(),
		Additional: map[string]any{
			"publisher":     concrete.String(),
			"kind":          concrete.Kind().String(),
			"publisher_url": concrete.PublisherURL(claims),
			"added_by":      pending.AddedBy(),
		},
	}); err != nil {
		logger.Error().Err(err).Msg("failed to record publisher-added event")
	}

	// A successful reification proves the registrations were legitimate.
	s.rateLimiter.Clear(pending.AddedBy())
	if req.RemoteIP != "" {
		s.rateLimiter.Clear(req.RemoteIP)
	}

	s.metrics.Increment("mint.pending_publisher_reified", "kind:"+concrete.Kind().String())
	auditEntry.Reified = true
	return concrete, nil
}

func (s *MintService) recordMintEvents(ctx context.Context, publisher core.Publisher, claims core.ClaimSet, projectIDs []string, meta core.CredentialMetadata) {
	logger := log.Ctx(ctx)

	additional := map[string]any{
		"publisher":     publisher.String(),
		"kind":          publisher.Kind().String(),
		"publisher_url": publisher.PublisherURL(claims),
		"expires":       meta.ExpiresAt.Unix(),
	}
	// A workflow minting through a shared (reusable) workflow is worth
	// surfacing to project owners.
	if jwr, wr := claims.String("job_workflow_ref"), claims.String("workflow_ref"); jwr != "" && wr != "" && jwr != wr {
		additional["reusable_workflow"] = jwr
	}

	for _, projectID := range projectIDs {
		if err := s.projectStore.RecordEvent(core.ProjectEvent{
			ProjectID:  projectID,
			Tag:        core.EventShortLivedTokenAdded,
			Time:       time.Now().UTC(),
			Additional: additional,
		}); err != nil {
			logger.Error().Err(err).Str("project_id", projectID).Msg("failed to record mint event")
		}
	}
}

// maybeSuggestEnvironment nudges owners of unconstrained GitHub/GitLab
// publishers whose workflows actually run in a named environment.
func (s *MintService) maybeSuggestEnvironment(ctx context.Context, publisher core.Publisher, claims core.ClaimSet, projectIDs []string) {
	if publisher.Kind() != core.KindGitHub && publisher.Kind() != core.KindGitLab {
		return
	}
	environment := claims.String("environment")
	if environment == "" {
		return
	}
	if publisher.IdentityAttributes()["environment"] != "" {
		return
	}
	// Only publishers scoped to exactly one project get the nudge.
	if len(projectIDs) != 1 {
		return
	}
	s.notifier.EnvironmentConstraintSuggested(ctx, projectIDs[0], publisher.String(), environment)
}

// unverifiedIssuer pulls the iss claim out of an undecoded token without any
// signature verification.
func unverifiedIssuer(rawToken string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return "", err
	}
	issuer, _ := claims["iss"].(string)
	if issuer == "" {
		return "", errors.New("token has no iss claim")
	}
	return issuer, nil
}
