package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func withClock(t *testing.T, now time.Time) func(time.Time) {
	t.Helper()
	cur := now
	orig := timeNow
	timeNow = func() time.Time { return cur }
	t.Cleanup(func() { timeNow = orig })
	return func(next time.Time) { cur = next }
}

func TestNewPreviewLink(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	withClock(t, start)

	link, err := NewPreviewLink(42, "digest", "kpak-editor", DefaultLinkTTL)
	if err != nil {
		t.Fatalf("NewPreviewLink() error = %v", err)
	}

	if !strings.HasPrefix(link.ID, LinkIDPrefix) || len(link.ID) != 31 {
		t.Errorf("ID = %q, want pvlk- + 26 chars", link.ID)
	}
	if !IsValidID(link.ID, LinkIDPrefix) {
		t.Errorf("IsValidID(%q) = false", link.ID)
	}
	if link.CreatedAt != start.UnixMilli() {
		t.Errorf("CreatedAt = %d, want %d", link.CreatedAt, start.UnixMilli())
	}
	if got := link.ExpiresAtTime().Sub(link.CreatedAtTime()); got != DefaultLinkTTL {
		t.Errorf("lifetime = %v, want %v", got, DefaultLinkTTL)
	}
	if link.Version != 1 {
		t.Errorf("Version = %d, want 1", link.Version)
	}
	if err := link.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestPreviewLink_Status(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	set := withClock(t, start)

	link, _ := NewPreviewLink(1, "d", "", 2*time.Hour)
	if got := link.Status(); got != LinkStatusActive {
		t.Errorf("Status() = %q, want active", got)
	}

	set(start.Add(2 * time.Hour))
	if got := link.Status(); got != LinkStatusExpired {
		t.Errorf("Status() at expiry = %q, want expired", got)
	}

	link.Revoke()
	if got := link.Status(); got != LinkStatusRevoked {
		t.Errorf("Status() after revoke = %q, want revoked", got)
	}
}

func TestPreviewLink_Revoke(t *testing.T) {
	link, _ := NewPreviewLink(1, "d", "", time.Hour)

	if !link.Revoke() {
		t.Fatal("first Revoke() = false")
	}
	revokedAt, version := link.RevokedAt, link.Version
	if link.Revoke() {
		t.Error("second Revoke() = true, want false")
	}
	if link.RevokedAt != revokedAt || link.Version != version {
		t.Error("second Revoke() modified the link")
	}
}

func TestPreviewLink_Extend(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	set := withClock(t, start)

	link, _ := NewPreviewLink(1, "d", "", time.Hour)
	set(start.Add(3 * time.Hour))

	if err := link.Extend(DefaultExtendTTL); err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	if want := start.Add(3*time.Hour + DefaultExtendTTL).UnixMilli(); link.ExpiresAt != want {
		t.Errorf("ExpiresAt = %d, want %d", link.ExpiresAt, want)
	}
	if !link.IsActive() {
		t.Error("extended link should be active again")
	}

	link.Revoke()
	if err := link.Extend(time.Hour); !errors.Is(err, ErrLinkRevoked) {
		t.Errorf("Extend() on revoked link error = %v, want ErrLinkRevoked", err)
	}
}

func TestPreviewLink_Validate(t *testing.T) {
	good, _ := NewPreviewLink(7, "d", "", time.Hour)

	tests := []struct {
		name   string
		mutate func(l *PreviewLink)
	}{
		{"bad id", func(l *PreviewLink) { l.ID = "tmss-123" }},
		{"zero post", func(l *PreviewLink) { l.PostID = 0 }},
		{"missing digest", func(l *PreviewLink) { l.TokenHash = "" }},
		{"long creator", func(l *PreviewLink) { l.CreatedBy = strings.Repeat("x", MaxCreatedByLength+1) }},
		{"expiry before creation", func(l *PreviewLink) { l.ExpiresAt = l.CreatedAt }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := *good
			tt.mutate(&l)
			if err := l.Validate(); !errors.Is(err, ErrLinkValidation) {
				t.Errorf("Validate() error = %v, want ErrLinkValidation", err)
			}
		})
	}
}

func TestValidateTTL(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		wantErr bool
	}{
		{"zero uses default", 0, false},
		{"minimum", MinLinkTTL, false},
		{"below minimum", 30 * time.Minute, true},
		{"maximum", MaxLinkTTL, false},
		{"above maximum", MaxLinkTTL + time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTTL(tt.ttl, MaxLinkTTL)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTTL(%v) error = %v, wantErr %v", tt.ttl, err, tt.wantErr)
			}
		})
	}
}

func TestNewHit(t *testing.T) {
	link, _ := NewPreviewLink(9, "d", "", time.Hour)
	hit, err := NewHit(link, strings.Repeat("1", 100), strings.Repeat("u", 1000))
	if err != nil {
		t.Fatalf("NewHit() error = %v", err)
	}
	if !IsValidID(hit.ID, HitIDPrefix) {
		t.Errorf("hit ID %q is not valid", hit.ID)
	}
	if hit.LinkID != link.ID || hit.PostID != 9 {
		t.Errorf("hit = %+v, want link %s post 9", hit, link.ID)
	}
	if len(hit.IP) != MaxIPAddressLength || len(hit.UserAgent) != MaxUserAgentLength {
		t.Errorf("client metadata not truncated: ip=%d ua=%d", len(hit.IP), len(hit.UserAgent))
	}
}

func TestNewHit_TruncatesOnRuneBoundary(t *testing.T) {
	link, _ := NewPreviewLink(9, "d", "", time.Hour)
	// "é" is two bytes. The padding puts a byte cut at each limit mid-rune.
	ua := "a" + strings.Repeat("é", MaxUserAgentLength) // limit 512
	ip := strings.Repeat("é", MaxIPAddressLength)       // limit 45

	hit, err := NewHit(link, ip, ua)
	if err != nil {
		t.Fatalf("NewHit() error = %v", err)
	}
	for name, got := range map[string]string{"user agent": hit.UserAgent, "ip": hit.IP} {
		if !utf8.ValidString(got) {
			t.Errorf("%s %q is not valid UTF-8", name, got)
		}
	}
	if len(hit.UserAgent) != MaxUserAgentLength-1 {
		t.Errorf("user agent length = %d, want %d", len(hit.UserAgent), MaxUserAgentLength-1)
	}
	if len(hit.IP) != MaxIPAddressLength-1 {
		t.Errorf("ip length = %d, want %d", len(hit.IP), MaxIPAddressLength-1)
	}
}

func TestIsValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"pvlk-01arz3ndektsv4rrffq69g5fav", true},
		{"PVLK-01arz3ndektsv4rrffq69g5fav", false},
		{"pvlk-01arz3ndektsv4rrffq69g5fa", false},
		{"pvlk-01arz3ndektsv4rrffq69g5fa!", false},
		{"pvht-01arz3ndektsv4rrffq69g5fav", false},
	}
	for _, tt := range tests {
		if got := IsValidID(tt.id, LinkIDPrefix); got != tt.want {
			t.Errorf("IsValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
