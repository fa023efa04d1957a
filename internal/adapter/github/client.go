// Package github implements domain.RepositoryProvider on the GitHub REST API.
package github

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"repochat/internal/domain"
	"repochat/internal/infra/config"
	"repochat/internal/infra/tracer"
)

// maxDirEntries is the most entries the contents API returns for one
// directory. Larger directories are silently truncated upstream.
const maxDirEntries = 1000

const (
	defaultPerPage = 100
	maxFileBytes   = 100 * 1024 * 1024
)

// Client is a repository provider backed by go-github. Each call
// authenticates with the caller's token; the client itself holds no
// credentials.
type Client struct {
	baseURL *url.URL
	base    http.RoundTripper
	limiter *rate.Limiter
	repos   *cache.Cache // token hash -> []domain.RepoSummary; nil when disabled
	perPage int
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the base transport under the oauth2 layer.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// NewClient creates a GitHub client from config. An empty BaseURL targets
// api.github.com.
func NewClient(cfg config.GitHubConfig, logger *slog.Logger, opts ...Option) (*Client, error) {
	c := &Client{
		base:    http.DefaultTransport,
		perPage: cfg.PerPage,
		logger:  logger,
	}
	if c.perPage <= 0 || c.perPage > 100 {
		c.perPage = defaultPerPage
	}
	if cfg.BaseURL != "" {
		raw := cfg.BaseURL
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("github: %w: base_url: %w", domain.ErrConfigLoad, err)
		}
		c.baseURL = u
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(limit, burst)

	if cfg.ListCacheTTL > 0 {
		c.repos = cache.New(cfg.ListCacheTTL, 2*cfg.ListCacheTTL)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// api returns a go-github client authenticated with token.
func (c *Client) api(token string) *gh.Client {
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   c.base,
		},
	}
	client := gh.NewClient(httpClient)
	if c.baseURL != nil {
		client.BaseURL = c.baseURL
	}
	return client
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("github: rate limiter: %w", err)
	}
	return nil
}

// ListRepositories returns every repository visible to the token, following
// pagination. Results are cached per token for the configured TTL.
func (c *Client) ListRepositories(ctx context.Context, token string) ([]domain.RepoSummary, error) {
	ctx, span := tracer.StartSpan(ctx, "github.list_repositories")
	defer span.End()

	key := cacheKey(token)
	if c.repos != nil {
		if v, ok := c.repos.Get(key); ok {
			span.SetAttributes(tracer.BoolAttr("github.cache_hit", true))
			tracer.SetOK(span)
			return v.([]domain.RepoSummary), nil
		}
	}

	api := c.api(token)
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: gh.ListOptions{PerPage: c.perPage},
	}
	var out []domain.RepoSummary
	for {
		if err := c.wait(ctx); err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		page, resp, err := api.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			err = mapError("list repositories", err)
			tracer.RecordError(span, err)
			return nil, err
		}
		for _, r := range page {
			out = append(out, toSummary(r))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	if out == nil {
		out = []domain.RepoSummary{}
	}

	if c.repos != nil {
		c.repos.SetDefault(key, out)
	}
	span.SetAttributes(tracer.IntAttr("github.repositories", len(out)))
	tracer.SetOK(span)
	return out, nil
}

// GetRepository returns the metadata of owner/repo.
func (c *Client) GetRepository(ctx context.Context, token, owner, repo string) (*domain.RepoDetail, error) {
	ctx, span := tracer.StartSpan(ctx, "github.get_repository",
		trace.WithAttributes(tracer.RepoAttrs(owner, repo, "")...),
	)
	defer span.End()

	if err := c.wait(ctx); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	r, _, err := c.api(token).Repositories.Get(ctx, owner, repo)
	if err != nil {
		err = mapError("get "+owner+"/"+repo, err)
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	return toDetail(r), nil
}

// GetContent returns the file or directory at path. The repository root is
// the empty path. File content is decoded; files larger than the contents API
// inline limit are downloaded through the raw endpoint.
func (c *Client) GetContent(ctx context.Context, token, owner, repo, path string) (*domain.ContentResult, error) {
	ctx, span := tracer.StartSpan(ctx, "github.get_content",
		trace.WithAttributes(tracer.RepoAttrs(owner, repo, path)...),
	)
	defer span.End()

	if err := c.wait(ctx); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	api := c.api(token)
	file, dir, _, err := api.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		err = mapError(fmt.Sprintf("content %s/%s/%s", owner, repo, path), err)
		tracer.RecordError(span, err)
		return nil, err
	}

	if file == nil {
		if len(dir) >= maxDirEntries {
			c.logger.Warn("directory listing may be truncated",
				"repo", owner+"/"+repo, "path", path, "entries", len(dir))
		}
		entries := make([]domain.ContentEntry, 0, len(dir))
		for _, e := range dir {
			entries = append(entries, domain.ContentEntry{
				Name: e.GetName(),
				Path: e.GetPath(),
				Type: e.GetType(),
				Size: e.GetSize(),
			})
		}
		span.SetAttributes(tracer.IntAttr("github.entries", len(entries)))
		tracer.SetOK(span)
		return &domain.ContentResult{Entries: entries}, nil
	}

	data, err := c.fileBytes(ctx, api, owner, repo, file)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.IntAttr("github.bytes", len(data)))
	tracer.SetOK(span)
	return &domain.ContentResult{File: &domain.FileContent{Path: file.GetPath(), Content: data}}, nil
}

func (c *Client) fileBytes(ctx context.Context, api *gh.Client, owner, repo string, file *gh.RepositoryContent) ([]byte, error) {
	if file.GetEncoding() != "none" {
		text, err := file.GetContent()
		if err != nil {
			return nil, fmt.Errorf("github: decode %s: %w: %w", file.GetPath(), domain.ErrProviderError, err)
		}
		return []byte(text), nil
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	rc, _, err := api.Repositories.DownloadContents(ctx, owner, repo, file.GetPath(), nil)
	if err != nil {
		return nil, mapError("download "+file.GetPath(), err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxFileBytes))
	if err != nil {
		return nil, fmt.Errorf("github: read %s: %w: %w", file.GetPath(), domain.ErrProviderError, err)
	}
	return data, nil
}

// InvalidateRepositories drops the cached listing for token.
func (c *Client) InvalidateRepositories(token string) {
	if c.repos != nil {
		c.repos.Delete(cacheKey(token))
	}
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func toSummary(r *gh.Repository) domain.RepoSummary {
	return domain.RepoSummary{
		ID: r.GetID(),
		Owner: domain.RepoOwner{
			Login:     r.GetOwner().GetLogin(),
			AvatarURL: r.GetOwner().GetAvatarURL(),
		},
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		Description: r.GetDescription(),
		Private:     r.GetPrivate(),
		HTMLURL:     r.GetHTMLURL(),
	}
}

func toDetail(r *gh.Repository) *domain.RepoDetail {
	license := r.GetLicense().GetName()
	if license == "" {
		license = r.GetLicense().GetSPDXID()
	}
	return &domain.RepoDetail{
		Name:     r.GetName(),
		FullName: r.GetFullName(),
		Owner: domain.RepoOwner{
			Login:     r.GetOwner().GetLogin(),
			AvatarURL: r.GetOwner().GetAvatarURL(),
		},
		Description:      r.GetDescription(),
		Language:         r.GetLanguage(),
		License:          license,
		HTMLURL:          r.GetHTMLURL(),
		CreatedAt:        timestamp(r.GetCreatedAt()),
		PushedAt:         timestamp(r.GetPushedAt()),
		SubscribersCount: r.GetSubscribersCount(),
		ForksCount:       r.GetForksCount(),
		StargazersCount:  r.GetStargazersCount(),
		WatchersCount:    r.GetWatchersCount(),
		OpenIssuesCount:  r.GetOpenIssuesCount(),
	}
}

func timestamp(t gh.Timestamp) time.Time {
	return t.Time
}

// mapError wraps a go-github error in the matching domain sentinel.
func mapError(op string, err error) error {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	var respErr *gh.ErrorResponse
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("github: %s: %w: %w", op, domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("github: %s: %w", op, err)
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return fmt.Errorf("github: %s: %w: %w", op, domain.ErrRateLimit, err)
	case errors.As(err, &respErr) && respErr.Response != nil:
		switch code := respErr.Response.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return fmt.Errorf("github: %s: %w: %w", op, domain.ErrAuthInvalid, err)
		case code == http.StatusNotFound:
			return fmt.Errorf("github: %s: %w: %w", op, domain.ErrNotFound, err)
		case code == http.StatusTooManyRequests:
			return fmt.Errorf("github: %s: %w: %w", op, domain.ErrRateLimit, err)
		}
	}
	return fmt.Errorf("github: %s: %w: %w", op, domain.ErrProviderError, err)
}

var _ domain.RepositoryProvider = (*Client)(nil)
