// Package integration holds end-to-end tests that wire the real adapters
// together, plus the helpers they share.
package integration

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"sort"
	"strings"
	"testing"
	"time"

	"repochat/internal/domain"
)

// Config holds integration test configuration from environment
type Config struct {
	GeminiKey   string
	GitHubToken string
	// Repo is an owner/name the token can read, used by live tool tests.
	Repo        string
	TestTimeout time.Duration
	SkipSlow    bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	return &Config{
		GeminiKey:   os.Getenv("REPOCHAT_LLM_API_KEY"),
		GitHubToken: os.Getenv("REPOCHAT_GITHUB_TOKEN"),
		Repo:        os.Getenv("REPOCHAT_TEST_REPO"),
		TestTimeout: 90 * time.Second,
		SkipSlow:    os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfMissing skips the test if the required setting is not set
func SkipIfMissing(t *testing.T, value, env string) {
	t.Helper()
	if value == "" {
		t.Skipf("Skipping integration test: %s not set", env)
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// FakeGitHub serves one repository's metadata and file tree over the subset
// of the GitHub REST API the repository provider uses.
type FakeGitHub struct {
	Owner string
	Repo  string
	Files map[string]string

	srv *httptest.Server
}

// NewFakeGitHub starts a fake API serving files for owner/repo. The server
// is closed when the test ends.
func NewFakeGitHub(t *testing.T, owner, repo string, files map[string]string) *FakeGitHub {
	t.Helper()
	f := &FakeGitHub{Owner: owner, Repo: repo, Files: files}

	mux := http.NewServeMux()
	mux.HandleFunc("/user/repos", f.listRepos)
	mux.HandleFunc("/repos/"+owner+"/"+repo, f.repository)
	mux.HandleFunc("/repos/"+owner+"/"+repo+"/contents/", f.contents)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// BaseURL is the API root to configure the provider with.
func (f *FakeGitHub) BaseURL() string { return f.srv.URL + "/" }

func (f *FakeGitHub) listRepos(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]any{{
		"id":        1,
		"name":      f.Repo,
		"full_name": f.Owner + "/" + f.Repo,
		"owner":     map[string]any{"login": f.Owner},
		"html_url":  "https://github.com/" + f.Owner + "/" + f.Repo,
	}})
}

func (f *FakeGitHub) repository(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":             f.Repo,
		"full_name":        f.Owner + "/" + f.Repo,
		"owner":            map[string]any{"login": f.Owner},
		"language":         "Go",
		"stargazers_count": 7,
		"html_url":         "https://github.com/" + f.Owner + "/" + f.Repo,
	})
}

func (f *FakeGitHub) contents(w http.ResponseWriter, r *http.Request) {
	p := strings.Trim(strings.TrimPrefix(r.URL.Path, "/repos/"+f.Owner+"/"+f.Repo+"/contents"), "/")

	if content, ok := f.Files[p]; ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"type":     "file",
			"name":     path.Base(p),
			"path":     p,
			"size":     len(content),
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
		return
	}

	entries := f.list(p)
	if entries == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// list returns the direct children of dir, directories included, sorted by
// name. Nil means dir does not exist.
func (f *FakeGitHub) list(dir string) []map[string]any {
	seen := map[string]map[string]any{}
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	for p, content := range f.Files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		name, _, isDir := strings.Cut(rest, "/")
		if isDir {
			seen[name] = map[string]any{"name": name, "path": prefix + name, "type": domain.NodeDir, "size": 0}
		} else {
			seen[name] = map[string]any{"name": name, "path": p, "type": domain.NodeFile, "size": len(content)}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]map[string]any, 0, len(names))
	for _, n := range names {
		out = append(out, seen[n])
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
