package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/yndnr/khm-preview/pkg/crypto/adaptive"
)

// sealedPrefix marks option values written by EncryptedOptions.
const sealedPrefix = "enc:v1:"

// EncryptedOptions seals option values before they reach the wrapped store.
// The option name is bound as additional data, so a sealed value cannot be
// moved to another option. Values without the sealed prefix are returned
// as-is, which lets encryption be enabled on an existing store.
type EncryptedOptions struct {
	inner  OptionStore
	sealer *adaptive.Sealer
}

var _ OptionStore = (*EncryptedOptions)(nil)

// NewEncryptedOptions wraps inner with sealer.
func NewEncryptedOptions(inner OptionStore, sealer *adaptive.Sealer) *EncryptedOptions {
	return &EncryptedOptions{inner: inner, sealer: sealer}
}

// Read returns the decrypted option value.
func (e *EncryptedOptions) Read(ctx context.Context, name string) (string, bool, error) {
	raw, found, err := e.inner.Read(ctx, name)
	if err != nil || !found {
		return "", found, err
	}
	v, err := e.open(name, raw)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Write seals and stores value.
func (e *EncryptedOptions) Write(ctx context.Context, name, value string) error {
	sealed, err := e.seal(name, value)
	if err != nil {
		return err
	}
	return e.inner.Write(ctx, name, sealed)
}

// CreateIfAbsent seals value and creates it if absent. The returned value
// is the decrypted winner.
func (e *EncryptedOptions) CreateIfAbsent(ctx context.Context, name, value string) (string, error) {
	sealed, err := e.seal(name, value)
	if err != nil {
		return "", err
	}
	stored, err := e.inner.CreateIfAbsent(ctx, name, sealed)
	if err != nil {
		return "", err
	}
	return e.open(name, stored)
}

func (e *EncryptedOptions) seal(name, value string) (string, error) {
	ct, err := e.sealer.Seal([]byte(value), []byte(optionPrefix+name))
	if err != nil {
		return "", fmt.Errorf("seal option %s: %w", name, err)
	}
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(ct), nil
}

func (e *EncryptedOptions) open(name, raw string) (string, error) {
	body, ok := strings.CutPrefix(raw, sealedPrefix)
	if !ok {
		return raw, nil
	}
	ct, err := base64.RawStdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("open option %s: %w", name, err)
	}
	pt, err := e.sealer.Open(ct, []byte(optionPrefix+name))
	if err != nil {
		return "", fmt.Errorf("open option %s: %w", name, err)
	}
	return string(pt), nil
}
