// Package github implements the SourceControlClient port using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SourceControlClient = (*Client)(nil)

const (
	// RequestTimeout bounds every upstream call so a fan-out stage cannot hang.
	RequestTimeout = 30 * time.Second

	// pullRequestPageSize is the number of most-recent open PRs listed per repository.
	pullRequestPageSize = 50
)

// Client implements the driven.SourceControlClient port using the go-github library.
type Client struct {
	gh *gh.Client
}

// Option configures NewClient.
type Option func(*Client)

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(u *url.URL) Option {
	return func(c *Client) {
		c.gh.BaseURL = u
	}
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching, always revalidated)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. oauth2 static token source (Authorization header)
//  4. go-github (GitHub REST API client)
func NewClient(token string, opts ...Option) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = revalidatingTransport{base: http.DefaultTransport}
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitClient.Transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		},
		Timeout: RequestTimeout,
	}

	c := &Client{gh: gh.NewClient(httpClient)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// revalidatingTransport marks upstream responses no-cache so httpcache
// revalidates every cached entry with its ETag instead of honouring GitHub's
// max-age. Mergeability must never be served stale.
type revalidatingTransport struct {
	base http.RoundTripper
}

func (t revalidatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Header.Set("Cache-Control", "no-cache")
	return resp, nil
}

// Factory adapts NewClient to the driven.SourceControlFactory signature.
func Factory(token string) driven.SourceControlClient {
	return NewClient(token)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// ListRepositories retrieves every repository visible to the authenticated user.
// It handles pagination automatically and preserves upstream order.
func (c *Client) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var all []model.Repository

	for {
		repos, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("listing repositories (page %d): %w", opts.Page, classify(resp, err))
		}

		logRateLimit(resp, "user/repos", opts.Page, len(repos))

		for _, r := range repos {
			all = append(all, mapRepository(r))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.Repository{}
	}

	return all, nil
}

// ListPullRequests retrieves one page of the most recent open pull requests.
// Mergeability is not part of the list payload, so every PR comes back
// MergeableUnknown until its detail is fetched.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo string) ([]model.PullRequest, error) {
	fullName := owner + "/" + repo
	opts := &gh.PullRequestListOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: pullRequestPageSize},
	}

	prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, fmt.Errorf("listing pull requests for %s: %w", fullName, classify(resp, err))
	}

	logRateLimit(resp, fullName+"/pulls", 0, len(prs))

	result := make([]model.PullRequest, 0, len(prs))
	for _, pr := range prs {
		result = append(result, mapPullRequest(pr, fullName))
	}

	return result, nil
}

// GetPullRequest fetches a single pull request including its mergeable state.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*model.PullRequest, error) {
	fullName := owner + "/" + repo

	pr, resp, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %s#%d: %w", fullName, number, classify(resp, err))
	}

	logRateLimit(resp, fullName+"/pull-detail", 0, 1)

	mapped := mapPullRequest(pr, fullName)
	return &mapped, nil
}

// IsMerged queries the merge-status endpoint. Only 204 No Content counts as
// merged; go-github reports any 2xx as true, so the status code is checked
// directly.
func (c *Client) IsMerged(ctx context.Context, owner, repo string, number int) (bool, error) {
	_, resp, err := c.gh.PullRequests.IsMerged(ctx, owner, repo, number)
	if err != nil {
		return false, fmt.Errorf("checking merge status of %s/%s#%d: %w", owner, repo, number, classify(resp, err))
	}

	return resp != nil && resp.StatusCode == http.StatusNoContent, nil
}

// AuthenticatedUser returns the login associated with the client's token.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("fetching authenticated user: %w", classify(resp, err))
	}
	return user.GetLogin(), nil
}

// classify maps a go-github error onto the driven error taxonomy while
// keeping the original error in the chain.
func classify(resp *gh.Response, err error) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	} else {
		var ghErr *gh.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil {
			status = ghErr.Response.StatusCode
		}
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", driven.ErrNotFound, err)
	case http.StatusMethodNotAllowed, http.StatusConflict:
		return fmt.Errorf("%w: %w", driven.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", driven.ErrTransport, err)
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

func mapRepository(r *gh.Repository) model.Repository {
	return model.Repository{
		ID:           r.GetID(),
		FullName:     r.GetFullName(),
		Owner:        r.GetOwner().GetLogin(),
		Name:         r.GetName(),
		Language:     r.GetLanguage(),
		Description:  r.GetDescription(),
		URL:          r.GetHTMLURL(),
		PullRequests: []model.PullRequest{},
	}
}

func mapPullRequest(pr *gh.PullRequest, repoFullName string) model.PullRequest {
	mapped := model.NewPullRequest(
		pr.GetID(),
		pr.GetNumber(),
		repoFullName,
		pr.GetTitle(),
		pr.GetHTMLURL(),
		pr.GetHead().GetRef(),
		pr.GetBase().GetRef(),
	)
	mapped.MergeableStatus = mapMergeable(pr.Mergeable)
	mapped.MergeableState = pr.GetMergeableState()
	return mapped
}

// mapMergeable converts the nullable mergeable flag into a tri-state status.
// GitHub returns null while it is still computing mergeability.
func mapMergeable(mergeable *bool) model.MergeableStatus {
	if mergeable == nil {
		return model.MergeableUnknown
	}
	if *mergeable {
		return model.MergeableMergeable
	}
	return model.MergeableConflicted
}
