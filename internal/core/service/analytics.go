package service

import (
	"context"
	"log/slog"

	"github.com/yndnr/khm-preview/internal/core/domain"
)

// DefaultRecentHits is the number of hits returned when no limit is given.
const DefaultRecentHits = 10

// HitRepository defines the storage interface for preview hits.
type HitRepository interface {
	AddHit(ctx context.Context, hit *domain.Hit) error

	// Hits returns up to limit hits newest first and the total count.
	Hits(ctx context.Context, linkID string, limit int) ([]*domain.Hit, int, error)
}

// AnalyticsService records and reports preview link views.
type AnalyticsService struct {
	repo   HitRepository
	logger *slog.Logger
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(repo HitRepository, logger *slog.Logger) *AnalyticsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsService{repo: repo, logger: logger}
}

// RecordHit stores a view of link from the given client.
func (s *AnalyticsService) RecordHit(ctx context.Context, link *domain.PreviewLink, clientIP, userAgent string) (*domain.Hit, error) {
	hit, err := domain.NewHit(link, clientIP, userAgent)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddHit(ctx, hit); err != nil {
		return nil, err
	}
	return hit, nil
}

// HitSummary is a page of recent hits plus the overall count.
type HitSummary struct {
	Hits  []*domain.Hit `json:"hits"`
	Total int           `json:"total"`
}

// RecentHits returns the newest hits for linkID. limit <= 0 selects
// DefaultRecentHits.
func (s *AnalyticsService) RecentHits(ctx context.Context, linkID string, limit int) (*HitSummary, error) {
	if limit <= 0 {
		limit = DefaultRecentHits
	}
	hits, total, err := s.repo.Hits(ctx, linkID, limit)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []*domain.Hit{}
	}
	return &HitSummary{Hits: hits, Total: total}, nil
}
