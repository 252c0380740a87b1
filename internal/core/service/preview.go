package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/khm-preview/internal/core/domain"
	"github.com/yndnr/khm-preview/pkg/token"
)

// LinkRepository defines the storage interface for preview links.
type LinkRepository interface {
	Create(ctx context.Context, link *domain.PreviewLink) error
	Update(ctx context.Context, link *domain.PreviewLink) error
	Get(ctx context.Context, id string) (*domain.PreviewLink, error)
	GetByDigest(ctx context.Context, digest string) (*domain.PreviewLink, error)

	// ListByPost returns the links of a post, newest first.
	ListByPost(ctx context.Context, postID int64) ([]*domain.PreviewLink, error)
}

// SecretRotator replaces the signing secret.
type SecretRotator interface {
	Rotate(ctx context.Context) error
}

// PreviewServiceConfig holds configuration for PreviewService.
type PreviewServiceConfig struct {
	// DefaultTTL is the lifetime of a link created without one (default: 48h).
	DefaultTTL time.Duration

	// ExtendTTL is the extension applied when none is given (default: 24h).
	ExtendTTL time.Duration

	// MaxTTL caps requested lifetimes (default: 30 days).
	MaxTTL time.Duration
}

// DefaultPreviewServiceConfig returns default configuration.
func DefaultPreviewServiceConfig() *PreviewServiceConfig {
	return &PreviewServiceConfig{
		DefaultTTL: domain.DefaultLinkTTL,
		ExtendTTL:  domain.DefaultExtendTTL,
		MaxTTL:     domain.MaxLinkTTL,
	}
}

// PreviewService issues, checks and manages preview links.
type PreviewService struct {
	repo      LinkRepository
	analytics *AnalyticsService
	tokens    *token.Generator
	rotator   SecretRotator
	cfg       *PreviewServiceConfig
	logger    *slog.Logger
	recorder  Recorder

	// mu serializes link mutations so a post never ends up with two
	// active links.
	mu sync.Mutex
}

// PreviewServiceDeps groups the collaborators of PreviewService.
type PreviewServiceDeps struct {
	Links     LinkRepository
	Analytics *AnalyticsService
	Tokens    *token.Generator
	Rotator   SecretRotator
	Logger    *slog.Logger
	Recorder  Recorder
}

// NewPreviewService creates a new PreviewService.
func NewPreviewService(deps PreviewServiceDeps, cfg *PreviewServiceConfig) *PreviewService {
	if cfg == nil {
		cfg = DefaultPreviewServiceConfig()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Recorder == nil {
		deps.Recorder = NopRecorder{}
	}
	return &PreviewService{
		repo:      deps.Links,
		analytics: deps.Analytics,
		tokens:    deps.Tokens,
		rotator:   deps.Rotator,
		cfg:       cfg,
		logger:    deps.Logger,
		recorder:  deps.Recorder,
	}
}

// CreateLinkRequest contains parameters for link creation.
type CreateLinkRequest struct {
	PostID    int64
	CreatedBy string
	TTL       time.Duration // 0 = DefaultTTL
}

// CreateLinkResponse contains the new link and its plaintext token.
// The token is never stored and cannot be retrieved again.
type CreateLinkResponse struct {
	Link  *domain.PreviewLink
	Token string
}

// CreateLink issues a new preview link for a post. Any active link for the
// same post is revoked first.
func (s *PreviewService) CreateLink(ctx context.Context, req *CreateLinkRequest) (*CreateLinkResponse, error) {
	if req.PostID <= 0 {
		return nil, domain.ErrLinkValidation.WithDetails("post_id must be positive")
	}
	if err := domain.ValidateTTL(req.TTL, s.cfg.MaxTTL); err != nil {
		return nil, err
	}
	ttl := req.TTL
	if ttl == 0 {
		ttl = s.cfg.DefaultTTL
	}

	plaintext, err := s.tokens.Generate(domain.TokenBytesLength)
	if err != nil {
		return nil, tokenError(err)
	}
	digest, err := s.tokens.HashToken(ctx, plaintext)
	if err != nil {
		return nil, tokenError(err)
	}

	link, err := domain.NewPreviewLink(req.PostID, digest, req.CreatedBy, ttl)
	if err != nil {
		return nil, err
	}
	if err := link.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.ListByPost(ctx, req.PostID)
	if err != nil {
		return nil, err
	}
	for _, old := range existing {
		if !old.IsActive() {
			continue
		}
		old.Revoke()
		if err := s.repo.Update(ctx, old); err != nil {
			return nil, err
		}
		s.recorder.LinkRevoked()
		s.logger.InfoContext(ctx, "previous preview link revoked", "link_id", old.ID, "post_id", old.PostID)
	}

	if err := s.repo.Create(ctx, link); err != nil {
		return nil, err
	}

	s.recorder.LinkCreated()
	s.logger.InfoContext(ctx, "preview link created",
		"link_id", link.ID,
		"post_id", link.PostID,
		"expires_at", link.ExpiresAtTime())

	return &CreateLinkResponse{Link: link, Token: plaintext}, nil
}

// GetLink returns a link by ID.
func (s *PreviewService) GetLink(ctx context.Context, id string) (*domain.PreviewLink, error) {
	if !domain.IsValidID(id, domain.LinkIDPrefix) {
		return nil, domain.ErrLinkNotFound.WithDetails(id)
	}
	return s.repo.Get(ctx, id)
}

// GetActiveLink returns the active link of a post.
func (s *PreviewService) GetActiveLink(ctx context.Context, postID int64) (*domain.PreviewLink, error) {
	links, err := s.repo.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		if link.IsActive() {
			return link, nil
		}
	}
	return nil, domain.ErrLinkNotFound.WithDetails("no active link for post")
}

// ListLinks returns every link of a post, newest first.
func (s *PreviewService) ListLinks(ctx context.Context, postID int64) ([]*domain.PreviewLink, error) {
	return s.repo.ListByPost(ctx, postID)
}

// RevokeLink revokes a link. Revoking an already revoked link succeeds
// without changing it.
func (s *PreviewService) RevokeLink(ctx context.Context, id string) (*domain.PreviewLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, err := s.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}
	if !link.Revoke() {
		return link, nil
	}
	if err := s.repo.Update(ctx, link); err != nil {
		return nil, err
	}

	s.recorder.LinkRevoked()
	s.logger.InfoContext(ctx, "preview link revoked", "link_id", link.ID, "post_id", link.PostID)
	return link, nil
}

// ExtendLink moves a link's expiry to ttl from now. ttl == 0 selects
// ExtendTTL. Expired links may be extended; revoked links may not.
func (s *PreviewService) ExtendLink(ctx context.Context, id string, ttl time.Duration) (*domain.PreviewLink, error) {
	if err := domain.ValidateTTL(ttl, s.cfg.MaxTTL); err != nil {
		return nil, err
	}
	if ttl == 0 {
		ttl = s.cfg.ExtendTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	link, err := s.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.Status() == domain.LinkStatusExpired {
		// Reviving an expired link must not leave two active links.
		active, err := s.GetActiveLink(ctx, link.PostID)
		switch {
		case err == nil && active.ID != link.ID:
			return nil, domain.ErrLinkValidation.WithDetails("post already has an active link " + active.ID)
		case err != nil && !errors.Is(err, domain.ErrLinkNotFound):
			return nil, err
		}
	}
	if err := link.Extend(ttl); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, link); err != nil {
		return nil, err
	}

	s.recorder.LinkExtended()
	s.logger.InfoContext(ctx, "preview link extended",
		"link_id", link.ID,
		"expires_at", link.ExpiresAtTime())
	return link, nil
}

// AuthorizeRequest contains a preview access attempt.
type AuthorizeRequest struct {
	PostID    int64
	Token     string
	ClientIP  string
	UserAgent string
}

// Authorization results reported to the Recorder.
const (
	AuthResultGranted     = "granted"
	AuthResultMalformed   = "malformed"
	AuthResultInvalid     = "invalid"
	AuthResultExpired     = "expired"
	AuthResultRevoked     = "revoked"
	AuthResultUnavailable = "unavailable"
)

// Authorize checks a token presented for a post and records a hit when it
// grants access. Secret or entropy failures deny access.
func (s *PreviewService) Authorize(ctx context.Context, req *AuthorizeRequest) (*domain.PreviewLink, error) {
	link, result, err := s.authorize(ctx, req)
	s.recorder.Authorization(result)
	if err != nil {
		s.logger.DebugContext(ctx, "preview denied",
			"post_id", req.PostID,
			"result", result,
			"token", domain.MaskToken(req.Token))
		return nil, err
	}

	if s.analytics != nil {
		if _, err := s.analytics.RecordHit(ctx, link, req.ClientIP, req.UserAgent); err != nil {
			s.logger.WarnContext(ctx, "record preview hit failed", "link_id", link.ID, "error", err)
		}
	}
	return link, nil
}

func (s *PreviewService) authorize(ctx context.Context, req *AuthorizeRequest) (*domain.PreviewLink, string, error) {
	if !domain.ValidateTokenFormat(req.Token) {
		return nil, AuthResultMalformed, domain.ErrTokenMalformed
	}
	if req.PostID <= 0 {
		return nil, AuthResultInvalid, domain.ErrTokenInvalid
	}

	digest, err := s.tokens.HashToken(ctx, domain.NormalizeToken(req.Token))
	if err != nil {
		return nil, AuthResultUnavailable, tokenError(err)
	}

	link, err := s.repo.GetByDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			return nil, AuthResultInvalid, domain.ErrTokenInvalid
		}
		return nil, AuthResultUnavailable, err
	}
	if link.PostID != req.PostID {
		return nil, AuthResultInvalid, domain.ErrTokenInvalid
	}
	ok, err := s.tokens.Verify(ctx, domain.NormalizeToken(req.Token), link.TokenHash)
	if err != nil {
		return nil, AuthResultUnavailable, tokenError(err)
	}
	if !ok {
		return nil, AuthResultInvalid, domain.ErrTokenInvalid
	}

	switch link.Status() {
	case domain.LinkStatusRevoked:
		return nil, AuthResultRevoked, domain.ErrLinkRevoked
	case domain.LinkStatusExpired:
		return nil, AuthResultExpired, domain.ErrLinkExpired
	}
	return link, AuthResultGranted, nil
}

// RotateSecret replaces the signing secret. All issued links stop working.
func (s *PreviewService) RotateSecret(ctx context.Context) error {
	if s.rotator == nil {
		return domain.ErrServiceUnavailable.WithDetails("secret rotation not supported")
	}
	if err := s.rotator.Rotate(ctx); err != nil {
		return tokenError(err)
	}
	return nil
}

// tokenError maps token package failures to domain errors.
func tokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrSecretUnavailable):
		return domain.ErrSecretUnavailable.WithCause(err)
	case errors.Is(err, token.ErrEntropyUnavailable):
		return domain.ErrEntropyUnavailable.WithCause(err)
	case errors.Is(err, token.ErrInvalidLength):
		return domain.ErrInvalidArgument.WithCause(err)
	default:
		return domain.ErrInternalServer.WithCause(err)
	}
}
