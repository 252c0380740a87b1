package storage

import (
	"context"
	"errors"
	"fmt"
)

const optionPrefix = "opt/"

// OptionStore is a named, string-valued settings store.
type OptionStore interface {
	// Read returns the option value and whether it exists.
	Read(ctx context.Context, name string) (value string, found bool, err error)

	// Write stores value under name, replacing any previous value.
	Write(ctx context.Context, name, value string) error

	// CreateIfAbsent stores value only when name has no value and returns
	// the value that is stored afterwards, whoever wrote it.
	CreateIfAbsent(ctx context.Context, name, value string) (string, error)
}

// KVOptions implements OptionStore on a KVEngine.
type KVOptions struct {
	kv KVEngine
}

var _ OptionStore = (*KVOptions)(nil)

// NewKVOptions creates an option store using kv.
func NewKVOptions(kv KVEngine) *KVOptions {
	return &KVOptions{kv: kv}
}

func optionKey(name string) []byte {
	return []byte(optionPrefix + name)
}

// Read returns the option value and whether it exists.
func (o *KVOptions) Read(ctx context.Context, name string) (string, bool, error) {
	v, err := o.kv.Get(ctx, optionKey(name))
	if errors.Is(err, ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read option %s: %w", name, err)
	}
	return string(v), true, nil
}

// Write stores value under name.
func (o *KVOptions) Write(ctx context.Context, name, value string) error {
	if err := o.kv.Set(ctx, optionKey(name), []byte(value)); err != nil {
		return fmt.Errorf("write option %s: %w", name, err)
	}
	return nil
}

// CreateIfAbsent stores value unless name already has a value.
func (o *KVOptions) CreateIfAbsent(ctx context.Context, name, value string) (string, error) {
	stored, _, err := o.kv.SetIfAbsent(ctx, optionKey(name), []byte(value))
	if err != nil {
		return "", fmt.Errorf("create option %s: %w", name, err)
	}
	return string(stored), nil
}
