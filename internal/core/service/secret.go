package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/khm-preview/pkg/token"
)

const (
	// SecretOptionName is the option under which the preview secret is kept.
	SecretOptionName = "khm_preview_secret"

	// SecretBytes is the amount of randomness in a generated secret.
	SecretBytes = 64

	// DefaultSecretRefresh is how long a loaded secret is trusted before the
	// store is read again, bounding how long a rotation made by another
	// process goes unnoticed.
	DefaultSecretRefresh = 10 * time.Second
)

// Secret operation names reported to the Recorder.
const (
	SecretOpLoad   = "load"
	SecretOpCreate = "create"
	SecretOpRotate = "rotate"
)

// OptionStore is the persistence the secret provider needs.
type OptionStore interface {
	Read(ctx context.Context, name string) (value string, found bool, err error)
	Write(ctx context.Context, name, value string) error
}

// OptionCreator is implemented by stores that can create a value only if
// absent. When available it is used so concurrent first uses across
// processes converge on a single secret.
type OptionCreator interface {
	CreateIfAbsent(ctx context.Context, name, value string) (string, error)
}

// OptionSecretProvider is the default token.SecretProvider. It loads the
// secret from an option store and creates it on first use.
//
// The value is cached for the refresh interval; Rotate replaces it.
type OptionSecretProvider struct {
	store    OptionStore
	name     string
	random   io.Reader
	logger   *slog.Logger
	recorder Recorder
	refresh  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	cached   string
	loadedAt time.Time
}

var _ token.SecretProvider = (*OptionSecretProvider)(nil)

// SecretProviderOption configures an OptionSecretProvider.
type SecretProviderOption func(*OptionSecretProvider)

// WithSecretRandom replaces the random source used to create secrets.
func WithSecretRandom(r io.Reader) SecretProviderOption {
	return func(p *OptionSecretProvider) { p.random = r }
}

// WithSecretOptionName overrides the option name.
func WithSecretOptionName(name string) SecretProviderOption {
	return func(p *OptionSecretProvider) { p.name = name }
}

// WithSecretLogger sets the logger.
func WithSecretLogger(l *slog.Logger) SecretProviderOption {
	return func(p *OptionSecretProvider) { p.logger = l }
}

// WithSecretRecorder sets the metrics recorder.
func WithSecretRecorder(r Recorder) SecretProviderOption {
	return func(p *OptionSecretProvider) { p.recorder = r }
}

// WithSecretRefresh sets how long a loaded secret is used before the store
// is read again. Zero or less caches it until Invalidate or Rotate.
func WithSecretRefresh(d time.Duration) SecretProviderOption {
	return func(p *OptionSecretProvider) { p.refresh = d }
}

// WithSecretClock replaces the clock used for refresh decisions.
func WithSecretClock(now func() time.Time) SecretProviderOption {
	return func(p *OptionSecretProvider) { p.now = now }
}

// NewOptionSecretProvider creates a provider backed by store.
func NewOptionSecretProvider(store OptionStore, opts ...SecretProviderOption) *OptionSecretProvider {
	p := &OptionSecretProvider{
		store:    store,
		name:     SecretOptionName,
		random:   rand.Reader,
		logger:   slog.Default(),
		recorder: NopRecorder{},
		refresh:  DefaultSecretRefresh,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Secret returns the preview secret, creating and persisting it if the
// store has none. Failures wrap token.ErrSecretUnavailable.
//
// Once the refresh interval has passed the store is read again, so a
// rotation by another process sharing the store is picked up. A failed
// re-read fails closed rather than serving the stale value.
func (p *OptionSecretProvider) Secret(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" && (p.refresh <= 0 || p.now().Sub(p.loadedAt) < p.refresh) {
		return p.cached, nil
	}

	value, found, err := p.store.Read(ctx, p.name)
	if err != nil {
		p.recorder.SecretOperation(SecretOpLoad, "error")
		return "", fmt.Errorf("%w: %w", token.ErrSecretUnavailable, err)
	}
	if found && value != "" {
		p.recorder.SecretOperation(SecretOpLoad, "ok")
		if p.cached != "" && value != p.cached {
			p.logger.Info("preview secret changed in store, using the new value", "option", p.name)
		}
		p.keep(value)
		return value, nil
	}

	fresh, err := p.newSecret()
	if err != nil {
		p.recorder.SecretOperation(SecretOpCreate, "error")
		return "", fmt.Errorf("%w: %w", token.ErrSecretUnavailable, err)
	}

	stored, err := p.persist(ctx, fresh)
	if err != nil {
		p.recorder.SecretOperation(SecretOpCreate, "error")
		return "", fmt.Errorf("%w: %w", token.ErrSecretUnavailable, err)
	}

	p.recorder.SecretOperation(SecretOpCreate, "ok")
	if stored == fresh {
		p.logger.Info("preview secret created", "option", p.name)
	} else {
		p.logger.Info("preview secret created concurrently, using stored value", "option", p.name)
	}
	p.keep(stored)
	return stored, nil
}

func (p *OptionSecretProvider) keep(value string) {
	p.cached = value
	p.loadedAt = p.now()
}

// persist stores fresh if no value exists yet and returns the stored value.
func (p *OptionSecretProvider) persist(ctx context.Context, fresh string) (string, error) {
	if c, ok := p.store.(OptionCreator); ok {
		stored, err := c.CreateIfAbsent(ctx, p.name, fresh)
		if err != nil {
			return "", err
		}
		if stored == "" {
			return "", fmt.Errorf("option %s is empty after create", p.name)
		}
		return stored, nil
	}

	// Without create-if-absent the last writer wins; re-reading returns
	// whatever the store settled on.
	if err := p.store.Write(ctx, p.name, fresh); err != nil {
		return "", err
	}
	stored, found, err := p.store.Read(ctx, p.name)
	if err != nil {
		return "", err
	}
	if !found || stored == "" {
		return "", fmt.Errorf("option %s missing after write", p.name)
	}
	return stored, nil
}

// Rotate replaces the stored secret with a fresh one. Every digest computed
// under the old secret stops verifying.
func (p *OptionSecretProvider) Rotate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fresh, err := p.newSecret()
	if err != nil {
		p.recorder.SecretOperation(SecretOpRotate, "error")
		return fmt.Errorf("%w: %w", token.ErrSecretUnavailable, err)
	}
	if err := p.store.Write(ctx, p.name, fresh); err != nil {
		p.recorder.SecretOperation(SecretOpRotate, "error")
		return fmt.Errorf("%w: %w", token.ErrSecretUnavailable, err)
	}

	p.recorder.SecretOperation(SecretOpRotate, "ok")
	p.logger.Warn("preview secret rotated, existing preview links are invalidated", "option", p.name)
	p.keep(fresh)
	return nil
}

// Invalidate drops the cached value so the next Secret call re-reads the store.
func (p *OptionSecretProvider) Invalidate() {
	p.mu.Lock()
	p.cached = ""
	p.mu.Unlock()
}

func (p *OptionSecretProvider) newSecret() (string, error) {
	b := make([]byte, SecretBytes)
	if _, err := io.ReadFull(p.random, b); err != nil {
		return "", fmt.Errorf("%w: %w", token.ErrEntropyUnavailable, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
