package command

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/khm-preview/internal/core/domain"
	"github.com/yndnr/khm-preview/internal/core/service"
	"github.com/yndnr/khm-preview/internal/server/httpserver"
	"github.com/yndnr/khm-preview/internal/storage"
	"github.com/yndnr/khm-preview/internal/storage/memory"
	"github.com/yndnr/khm-preview/pkg/token"
)

type credential struct {
	id     string
	secret string
}

type testServer struct {
	*httptest.Server
	creds map[domain.Role]credential
}

// newTestServer runs the real router on a memory engine.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return startTestServer(t, httptest.NewServer)
}

func startTestServer(t *testing.T, start func(http.Handler) *httptest.Server) *testServer {
	t.Helper()
	kv := memory.New()
	t.Cleanup(func() { kv.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	links := storage.NewLinkStore(kv)
	secrets := service.NewOptionSecretProvider(storage.NewKVOptions(kv))
	analytics := service.NewAnalyticsService(links, logger)
	previewSvc := service.NewPreviewService(service.PreviewServiceDeps{
		Links:     links,
		Analytics: analytics,
		Tokens:    token.NewGenerator(secrets),
		Rotator:   secrets,
		Logger:    logger,
	}, nil)

	creds := make(map[domain.Role]credential)
	var keys []domain.APIKey
	for _, role := range []domain.Role{domain.RoleEditor, domain.RoleAdmin} {
		secret, err := domain.NewAPISecret()
		if err != nil {
			t.Fatal(err)
		}
		hash, err := domain.HashAPISecret(secret)
		if err != nil {
			t.Fatal(err)
		}
		id := string(role) + "-cli"
		keys = append(keys, domain.APIKey{KeyID: id, SecretHash: hash, Role: role})
		creds[role] = credential{id: id, secret: secret}
	}
	authSvc, err := service.NewAuthService(service.AuthServiceConfig{Keys: keys})
	if err != nil {
		t.Fatal(err)
	}

	cfg := httpserver.DefaultRouterConfig()
	cfg.PreviewService = previewSvc
	cfg.AnalyticsService = analytics
	cfg.AuthService = authSvc
	cfg.Logger = logger
	cfg.EnableAudit = false

	srv := start(httpserver.NewRouter(cfg))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, creds: creds}
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes the CLI with an isolated config file and the given stdin.
func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := App()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.Reader = strings.NewReader(stdin)

	full := append([]string{"khm-preview-cli", "--config", filepath.Join(t.TempDir(), "cli.yaml")}, args...)
	err := app.Run(full)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// remote prefixes args with the server address and the role's key.
func (s *testServer) remote(role domain.Role, args ...string) []string {
	cred := s.creds[role]
	return append([]string{"--server", s.URL, "--api-key-id", cred.id, "--api-key", cred.secret}, args...)
}

func decodeJSON(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
}

func TestTokenGenerate(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantLen int
		wantErr bool
	}{
		{"default length", nil, domain.TokenLength, false},
		{"custom length", []string{"--length", "4"}, 8, false},
		{"zero length", []string{"--length", "0"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := run(t, "", append([]string{"token", "generate"}, tt.args...)...)
			if (r.err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", r.err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := strings.TrimSpace(r.stdout); len(got) != tt.wantLen {
				t.Errorf("token %q has length %d, want %d", got, len(got), tt.wantLen)
			}
		})
	}
}

func TestTokenHash(t *testing.T) {
	tok := strings.Repeat("ab", domain.TokenBytesLength)
	want := token.Digest("s3cret", tok)
	t.Setenv("KHM_TEST_SECRET", "s3cret")

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"inline secret", []string{"--secret", "s3cret", tok}, false},
		{"secret from env", []string{"--secret-env", "KHM_TEST_SECRET", tok}, false},
		{"uppercase token", []string{"--secret", "s3cret", strings.ToUpper(tok)}, false},
		{"no secret", []string{tok}, true},
		{"both secrets", []string{"--secret", "x", "--secret-env", "KHM_TEST_SECRET", tok}, true},
		{"empty env", []string{"--secret-env", "KHM_TEST_UNSET", tok}, true},
		{"no token", []string{"--secret", "s3cret"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := run(t, "", append([]string{"token", "hash"}, tt.args...)...)
			if (r.err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", r.err, tt.wantErr)
			}
			if !tt.wantErr && strings.TrimSpace(r.stdout) != want {
				t.Errorf("digest = %q, want %q", strings.TrimSpace(r.stdout), want)
			}
		})
	}
}

func TestAPIKeyHash(t *testing.T) {
	t.Run("secret flag", func(t *testing.T) {
		r := run(t, "", "-o", "json", "apikey", "hash", "--id", "editor-1", "--secret", "kpas_given")
		if r.err != nil {
			t.Fatalf("error = %v", r.err)
		}
		var entry apiKeyEntry
		decodeJSON(t, r.stdout, &entry)
		if entry.ID != "editor-1" || entry.Role != "editor" {
			t.Errorf("entry = %+v", entry)
		}
		if entry.Secret != "" {
			t.Error("a given secret was echoed back")
		}
		if !domain.VerifyAPISecret("kpas_given", entry.SecretHash) {
			t.Error("hash does not verify the secret")
		}
	})

	t.Run("stdin", func(t *testing.T) {
		r := run(t, "kpas_piped\n", "-o", "json", "apikey", "hash", "--role", "admin")
		if r.err != nil {
			t.Fatalf("error = %v", r.err)
		}
		var entry apiKeyEntry
		decodeJSON(t, r.stdout, &entry)
		if entry.Role != "admin" || !domain.VerifyAPISecret("kpas_piped", entry.SecretHash) {
			t.Errorf("entry = %+v", entry)
		}
	})

	t.Run("generate", func(t *testing.T) {
		r := run(t, "", "-o", "yaml", "apikey", "hash", "--generate")
		if r.err != nil {
			t.Fatalf("error = %v", r.err)
		}
		if !strings.Contains(r.stdout, "secret: "+domain.APIKeySecretPrefix) {
			t.Errorf("generated secret missing from output:\n%s", r.stdout)
		}
		if !strings.Contains(r.stderr, "Save this secret") {
			t.Errorf("stderr = %q", r.stderr)
		}
	})

	for _, args := range [][]string{
		{"--role", "owner", "--secret", "x"},
		{"--generate", "--secret", "x"},
		{},
	} {
		if r := run(t, "", append([]string{"apikey", "hash"}, args...)...); r.err == nil {
			t.Errorf("apikey hash %v succeeded", args)
		}
	}
}

func TestLinkLifecycle(t *testing.T) {
	srv := newTestServer(t)

	r := run(t, "", srv.remote(domain.RoleEditor, "-o", "json", "link", "create", "--post", "42", "--hours", "3")...)
	if r.err != nil {
		t.Fatalf("create error = %v", r.err)
	}
	var created struct {
		ID         string `json:"id"`
		PostID     int64  `json:"post_id"`
		Token      string `json:"token"`
		PreviewURL string `json:"preview_url"`
	}
	decodeJSON(t, r.stdout, &created)
	if created.PostID != 42 || !domain.ValidateTokenFormat(created.Token) {
		t.Fatalf("created = %+v", created)
	}
	if !strings.Contains(created.PreviewURL, created.Token) {
		t.Errorf("preview_url = %q", created.PreviewURL)
	}

	r = run(t, "", srv.remote(domain.RoleEditor, "link", "get", created.ID)...)
	if r.err != nil {
		t.Fatalf("get error = %v", r.err)
	}
	if !strings.Contains(r.stdout, "active") || strings.Contains(r.stdout, created.Token) {
		t.Errorf("get output:\n%s", r.stdout)
	}

	r = run(t, "", srv.remote(domain.RoleEditor, "link", "active", "--post", "42")...)
	if r.err != nil || !strings.Contains(r.stdout, "total_hits") {
		t.Errorf("active error = %v, output:\n%s", r.err, r.stdout)
	}

	r = run(t, "", srv.remote(domain.RoleEditor, "-w", "link", "list", "--post", "42")...)
	if r.err != nil {
		t.Fatalf("list error = %v", r.err)
	}
	for _, want := range []string{"LINK ID", "CREATED BY", created.ID, "editor-cli", "Total: 1 links"} {
		if !strings.Contains(r.stdout, want) {
			t.Errorf("list output missing %q:\n%s", want, r.stdout)
		}
	}

	r = run(t, "", srv.remote(domain.RoleEditor, "link", "extend", created.ID, "--hours", "5")...)
	if r.err != nil {
		t.Fatalf("extend error = %v", r.err)
	}

	r = run(t, "n\n", srv.remote(domain.RoleEditor, "link", "revoke", created.ID)...)
	if r.err != nil || !strings.Contains(r.stderr, "Cancelled.") {
		t.Fatalf("declined revoke: error = %v, stderr = %q", r.err, r.stderr)
	}

	r = run(t, "", srv.remote(domain.RoleEditor, "-o", "json", "link", "revoke", "--force", created.ID)...)
	if r.err != nil {
		t.Fatalf("revoke error = %v", r.err)
	}
	var revoked struct {
		Status string `json:"status"`
	}
	decodeJSON(t, r.stdout, &revoked)
	if revoked.Status != string(domain.LinkStatusRevoked) {
		t.Errorf("status after revoke = %q", revoked.Status)
	}
}

func TestLinkErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown link", srv.remote(domain.RoleEditor, "link", "get", "pvlk-missing"), "KP-LINK-4040"},
		{"no active link", srv.remote(domain.RoleEditor, "link", "active", "--post", "7"), "KP-LINK-4040"},
		{"missing id", srv.remote(domain.RoleEditor, "link", "get"), "link ID required"},
		{"missing credentials", []string{"--server", srv.URL, "link", "get", "pvlk-1"}, "API key required"},
		{"bad output format", srv.remote(domain.RoleEditor, "-o", "xml", "link", "get", "pvlk-1"), "unknown output format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := run(t, "", tt.args...)
			if r.err == nil || !strings.Contains(r.err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", r.err, tt.want)
			}
		})
	}
}

func TestSecretRotate(t *testing.T) {
	srv := newTestServer(t)

	r := run(t, "", srv.remote(domain.RoleEditor, "secret", "rotate", "--force")...)
	if r.err == nil || !strings.Contains(r.err.Error(), domain.ErrPermissionDenied.Code) {
		t.Errorf("editor rotate error = %v", r.err)
	}

	r = run(t, "", srv.remote(domain.RoleAdmin, "-o", "json", "secret", "rotate", "--force")...)
	if r.err != nil {
		t.Fatalf("admin rotate error = %v", r.err)
	}
	var rotated struct {
		Rotated bool `json:"rotated"`
	}
	decodeJSON(t, r.stdout, &rotated)
	if !rotated.Rotated {
		t.Errorf("output = %s", r.stdout)
	}
}

func TestParseGlobalFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cli.yaml")
	content := "server: https://from-file.example.com\napi_key_id: file-key\napi_key: file-secret\noutput: yaml\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	capture := func(got **GlobalFlags) *cli.Command {
		return &cli.Command{
			Name: "show",
			Action: func(c *cli.Context) error {
				flags, err := ParseGlobalFlags(c)
				*got = flags
				return err
			},
		}
	}

	tests := []struct {
		name   string
		args   []string
		server string
		keyID  string
		format string
	}{
		{"file values", nil, "https://from-file.example.com", "file-key", "yaml"},
		{"flags win", []string{"--server", "http://flag:1", "-o", "json"}, "http://flag:1", "file-key", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *GlobalFlags
			app := App()
			app.Commands = []*cli.Command{capture(&got)}
			args := append([]string{"khm-preview-cli", "--config", path}, tt.args...)
			if err := app.Run(append(args, "show")); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got.Server != tt.server || got.APIKeyID != tt.keyID || string(got.Output) != tt.format {
				t.Errorf("flags = %+v", got)
			}
		})
	}
}

func TestCAFile(t *testing.T) {
	srv := startTestServer(t, httptest.NewTLSServer)

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(caFile, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	if res := run(t, "", srv.remote(domain.RoleEditor, "link", "list", "--post", "1")...); res.err == nil {
		t.Fatal("expected a certificate error without --ca-file")
	}

	args := append([]string{"--ca-file", caFile}, srv.remote(domain.RoleEditor, "-o", "json", "link", "list", "--post", "1")...)
	if res := run(t, "", args...); res.err != nil {
		t.Fatalf("link list with --ca-file error = %v, stderr = %s", res.err, res.stderr)
	}

	missing := append([]string{"--ca-file", filepath.Join(t.TempDir(), "none.pem")}, srv.remote(domain.RoleEditor, "link", "list", "--post", "1")...)
	if res := run(t, "", missing...); res.err == nil || !strings.Contains(res.err.Error(), "load CA file") {
		t.Errorf("err = %v, want a CA file error", res.err)
	}
}
