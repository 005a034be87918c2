package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

// DefaultFetchConcurrency bounds in-flight upstream calls per fan-out stage.
const DefaultFetchConcurrency = 8

// FailedRepoPolicy decides what happens to a repository whose pull request
// listing failed.
type FailedRepoPolicy int

const (
	// DropFailedRepos removes the repository from the snapshot.
	DropFailedRepos FailedRepoPolicy = iota
	// KeepFailedRepos retains it with an empty list and PullRequestsUnavailable set.
	KeepFailedRepos
)

// AggregatorOption configures a RepoAggregator.
type AggregatorOption func(*RepoAggregator)

// WithInclude restricts aggregation to repositories whose owner/name matches
// at least one doublestar pattern. An empty list matches everything.
func WithInclude(patterns []string) AggregatorOption {
	return func(a *RepoAggregator) { a.include = patterns }
}

// WithConcurrency sets the per-stage fan-out limit.
func WithConcurrency(n int) AggregatorOption {
	return func(a *RepoAggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithFailedRepoPolicy sets how repositories with a failed listing are treated.
func WithFailedRepoPolicy(p FailedRepoPolicy) AggregatorOption {
	return func(a *RepoAggregator) { a.policy = p }
}

// RepoAggregator builds the repository snapshot: every repository of the
// authenticated user that has at least one pull request referencing an issue,
// with authoritative mergeability and merge status. Per-item failures degrade
// to fallbacks; only the repository listing itself can fail the call.
type RepoAggregator struct {
	clients     ClientSource
	logger      *slog.Logger
	include     []string
	concurrency int
	policy      FailedRepoPolicy
}

// NewRepoAggregator creates a RepoAggregator.
func NewRepoAggregator(clients ClientSource, logger *slog.Logger, opts ...AggregatorOption) *RepoAggregator {
	a := &RepoAggregator{
		clients:     clients,
		logger:      logger,
		concurrency: DefaultFetchConcurrency,
		policy:      DropFailedRepos,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Aggregate produces a fresh snapshot. Upstream ordering of repositories and
// pull requests is preserved.
func (a *RepoAggregator) Aggregate(ctx context.Context) ([]model.Repository, error) {
	start := time.Now()

	client, err := a.clients.Client(ctx)
	if err != nil {
		return nil, err
	}

	repos, err := client.ListRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregating repositories: %w", err)
	}
	listed := len(repos)
	repos = a.filterIncluded(repos)

	var (
		latencyMu sync.Mutex
		latencies []float64
	)
	observe := func(d time.Duration) {
		latencyMu.Lock()
		latencies = append(latencies, float64(d.Milliseconds()))
		latencyMu.Unlock()
	}

	// Stage 1+2: list each repository's open PRs, then fetch their details.
	// Errors are absorbed per item so siblings are never cancelled.
	var g errgroup.Group
	g.SetLimit(a.concurrency)

	for i := range repos {
		repo := &repos[i]
		g.Go(func() error {
			prs, err := client.ListPullRequests(ctx, repo.Owner, repo.Name)
			if err != nil {
				a.logger.Warn("listing pull requests failed", "repo", repo.FullName, "error", err)
				repo.PullRequests = []model.PullRequest{}
				repo.PullRequestsUnavailable = true
				return nil
			}

			var details errgroup.Group
			details.SetLimit(a.concurrency)
			for j := range prs {
				pr := &prs[j]
				details.Go(func() error {
					began := time.Now()
					detail, err := client.GetPullRequest(ctx, repo.Owner, repo.Name, pr.Number)
					observe(time.Since(began))
					if err != nil {
						a.logger.Debug("pull request detail failed, keeping list record",
							"repo", repo.FullName, "number", pr.Number, "error", err)
						return nil
					}
					*pr = *detail
					return nil
				})
			}
			_ = details.Wait()

			repo.PullRequests = prs
			return nil
		})
	}
	_ = g.Wait()

	kept := a.filterLinked(repos)

	// Stage 3: merge status for every linked PR.
	var merged errgroup.Group
	merged.SetLimit(a.concurrency)
	for i := range kept {
		repo := &kept[i]
		for j := range repo.PullRequests {
			pr := &repo.PullRequests[j]
			if pr.IssueKey == "" {
				continue
			}
			merged.Go(func() error {
				ok, err := client.IsMerged(ctx, repo.Owner, repo.Name, pr.Number)
				if err != nil {
					a.logger.Debug("merge status failed", "repo", repo.FullName, "number", pr.Number, "error", err)
				}
				pr.Merged = err == nil && ok
				return nil
			})
		}
	}
	_ = merged.Wait()

	a.logSummary(listed, len(repos), len(kept), latencies, time.Since(start))
	return kept, nil
}

func (a *RepoAggregator) filterIncluded(repos []model.Repository) []model.Repository {
	if len(a.include) == 0 {
		return repos
	}

	var out []model.Repository
	for _, repo := range repos {
		for _, pattern := range a.include {
			if ok, err := doublestar.Match(pattern, repo.FullName); err == nil && ok {
				out = append(out, repo)
				break
			}
		}
	}
	return out
}

func (a *RepoAggregator) filterLinked(repos []model.Repository) []model.Repository {
	out := make([]model.Repository, 0, len(repos))
	for _, repo := range repos {
		switch {
		case repo.PullRequestsUnavailable:
			if a.policy == KeepFailedRepos {
				out = append(out, repo)
			}
		case repo.HasLinkedPullRequest():
			out = append(out, repo)
		}
	}
	return out
}

func (a *RepoAggregator) logSummary(listed, included, kept int, latencies []float64, elapsed time.Duration) {
	attrs := []any{
		"listed", listed,
		"included", included,
		"kept", kept,
		"detail_calls", len(latencies),
		"elapsed", elapsed.Round(time.Millisecond),
	}
	if len(latencies) > 0 {
		median, _ := stats.Median(latencies)
		p95, _ := stats.Percentile(latencies, 95)
		attrs = append(attrs, "detail_p50_ms", median, "detail_p95_ms", p95)
	}
	a.logger.Debug("aggregation complete", attrs...)
}
