package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/yndnr/khm-preview/internal/core/domain"
)

const (
	linkPrefix   = "link/"
	digestPrefix = "digest/"
	postPrefix   = "post/"
	hitPrefix    = "hit/"
)

// LinkStore persists preview links and their hits on a KVEngine.
type LinkStore struct {
	kv KVEngine
}

// NewLinkStore creates a link store using kv.
func NewLinkStore(kv KVEngine) *LinkStore {
	return &LinkStore{kv: kv}
}

func linkKey(id string) []byte     { return []byte(linkPrefix + id) }
func digestKey(hash string) []byte { return []byte(digestPrefix + hash) }
func postIndexPrefix(postID int64) []byte {
	return []byte(postPrefix + strconv.FormatInt(postID, 10) + "/")
}
func postIndexKey(postID int64, id string) []byte {
	return append(postIndexPrefix(postID), id...)
}
func hitIndexPrefix(linkID string) []byte { return []byte(hitPrefix + linkID + "/") }

// Create stores a new link together with its digest and post indexes.
func (s *LinkStore) Create(ctx context.Context, link *domain.PreviewLink) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode link: %w", err)
	}
	err = s.kv.Apply(ctx, []Mutation{
		Put(linkKey(link.ID), data),
		Put(digestKey(link.TokenHash), []byte(link.ID)),
		Put(postIndexKey(link.PostID, link.ID), []byte{}),
	})
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// Update replaces a stored link whose Version is one behind link.Version.
// A link changed by someone else in between yields ErrLinkVersionConflict.
// Indexes are keyed by immutable fields and are left untouched.
func (s *LinkStore) Update(ctx context.Context, link *domain.PreviewLink) error {
	current, err := s.kv.Get(ctx, linkKey(link.ID))
	if errors.Is(err, ErrKeyNotFound) {
		return domain.ErrLinkNotFound.WithDetails(link.ID)
	}
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	var stored domain.PreviewLink
	if err := json.Unmarshal(current, &stored); err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("decode link %s: %w", link.ID, err))
	}
	if stored.Version+1 != link.Version {
		return domain.ErrLinkVersionConflict.WithDetails(
			fmt.Sprintf("link %s is at version %d", link.ID, stored.Version))
	}

	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode link: %w", err)
	}
	swapped, err := s.kv.CompareAndSwap(ctx, linkKey(link.ID), current, data)
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	if !swapped {
		return domain.ErrLinkVersionConflict.WithDetails(link.ID)
	}
	return nil
}

// Get returns the link with id.
func (s *LinkStore) Get(ctx context.Context, id string) (*domain.PreviewLink, error) {
	data, err := s.kv.Get(ctx, linkKey(id))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, domain.ErrLinkNotFound.WithDetails(id)
	}
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	var link domain.PreviewLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, domain.ErrStorageError.WithCause(fmt.Errorf("decode link %s: %w", id, err))
	}
	return &link, nil
}

// GetByDigest returns the link whose token hashes to digest.
func (s *LinkStore) GetByDigest(ctx context.Context, digest string) (*domain.PreviewLink, error) {
	id, err := s.kv.Get(ctx, digestKey(digest))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, domain.ErrLinkNotFound
	}
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return s.Get(ctx, string(id))
}

// ListByPost returns every link for postID, newest first.
func (s *LinkStore) ListByPost(ctx context.Context, postID int64) ([]*domain.PreviewLink, error) {
	prefix := postIndexPrefix(postID)
	var ids []string
	err := s.kv.Scan(ctx, prefix, func(key, _ []byte) bool {
		ids = append(ids, string(key[len(prefix):]))
		return true
	})
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}

	// Link IDs are ULIDs, so ascending key order is creation order.
	links := make([]*domain.PreviewLink, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		link, err := s.Get(ctx, ids[i])
		if domain.IsDomainError(err, domain.ErrLinkNotFound.Code) {
			continue
		}
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

// AddHit records a hit.
func (s *LinkStore) AddHit(ctx context.Context, hit *domain.Hit) error {
	data, err := json.Marshal(hit)
	if err != nil {
		return fmt.Errorf("encode hit: %w", err)
	}
	key := append(hitIndexPrefix(hit.LinkID), hit.ID...)
	if err := s.kv.Set(ctx, key, data); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return nil
}

// Hits returns up to limit hits for linkID, newest first, and the total
// number of hits recorded. limit <= 0 returns all hits.
//
// Only the newest limit values are kept while scanning and decoded.
func (s *LinkStore) Hits(ctx context.Context, linkID string, limit int) ([]*domain.Hit, int, error) {
	var (
		window [][]byte
		total  int
	)
	err := s.kv.Scan(ctx, hitIndexPrefix(linkID), func(_, value []byte) bool {
		if limit > 0 && len(window) == limit {
			window[total%limit] = value
		} else {
			window = append(window, value)
		}
		total++
		return true
	})
	if err != nil {
		return nil, 0, domain.ErrStorageError.WithCause(err)
	}

	// Hit IDs are ULIDs, so the newest value is the one written last.
	out := make([]*domain.Hit, 0, len(window))
	for i := 1; i <= len(window); i++ {
		var h domain.Hit
		if err := json.Unmarshal(window[(total-i)%len(window)], &h); err != nil {
			return nil, 0, domain.ErrStorageError.WithCause(fmt.Errorf("decode hit: %w", err))
		}
		out = append(out, &h)
	}
	return out, total, nil
}
