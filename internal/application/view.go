package application

import (
	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

// SessionView is the render-ready projection of a session.
type SessionView struct {
	ID                  string           `json:"id"`
	Repositories        []RepositoryView `json:"repositories"`
	Polling             bool             `json:"polling"`
	IssueTrackerEnabled bool             `json:"issue_tracker_enabled"`
}

// RepositoryView is one repository row.
type RepositoryView struct {
	FullName                string            `json:"full_name"`
	Owner                   string            `json:"owner"`
	Name                    string            `json:"name"`
	Language                string            `json:"language,omitempty"`
	Description             string            `json:"description,omitempty"`
	URL                     string            `json:"url"`
	PullRequestsUnavailable bool              `json:"pull_requests_unavailable,omitempty"`
	PullRequests            []PullRequestView `json:"pull_requests"`
}

// PullRequestView is one pull request with its merge and issue state.
type PullRequestView struct {
	Number          int        `json:"number"`
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	Branch          string     `json:"branch"`
	BaseBranch      string     `json:"base_branch"`
	MergeableStatus string     `json:"mergeable_status"`
	MergeableState  string     `json:"mergeable_state,omitempty"`
	IssueKey        string     `json:"issue_key,omitempty"`
	IssueState      string     `json:"issue_state,omitempty"`
	Issue           *IssueView `json:"issue,omitempty"`
	Merged          bool       `json:"merged"`
	Merging         bool       `json:"merging"`
	Settling        bool       `json:"settling"`
	CanMerge        bool       `json:"can_merge"`
	MergeError      string     `json:"merge_error,omitempty"`
}

// IssueView is the issue summary shown next to a pull request.
type IssueView struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

// NewIssueView projects an issue; nil stays nil.
func NewIssueView(issue *model.Issue) *IssueView {
	if issue == nil {
		return nil
	}
	return &IssueView{
		Key:     string(issue.Key),
		Summary: issue.Summary,
		Type:    issue.Type,
		Status:  issue.Status,
	}
}

// buildView joins the snapshot with merge state. A nil cache omits issue state.
func buildView(state *SessionState, cache *IssueCache) SessionView {
	state.mu.RLock()
	defer state.mu.RUnlock()

	view := SessionView{Repositories: make([]RepositoryView, 0, len(state.snapshot))}
	for _, repo := range state.snapshot {
		rv := RepositoryView{
			FullName:                repo.FullName,
			Owner:                   repo.Owner,
			Name:                    repo.Name,
			Language:                repo.Language,
			Description:             repo.Description,
			URL:                     repo.URL,
			PullRequestsUnavailable: repo.PullRequestsUnavailable,
			PullRequests:            make([]PullRequestView, 0, len(repo.PullRequests)),
		}

		for _, pr := range repo.PullRequests {
			ref := PRRef{RepoFullName: repo.FullName, Number: pr.Number}
			_, merging := state.pending[ref]
			_, succeeded := state.succeeded[ref]
			merged := pr.Merged || succeeded

			pv := PullRequestView{
				Number:          pr.Number,
				Title:           pr.Title,
				URL:             pr.URL,
				Branch:          pr.Branch,
				BaseBranch:      pr.BaseBranch,
				MergeableStatus: string(pr.MergeableStatus),
				MergeableState:  pr.MergeableState,
				IssueKey:        string(pr.IssueKey),
				Merged:          merged,
				Merging:         merging,
				Settling:        state.lastMerged != nil && *state.lastMerged == ref,
				CanMerge:        pr.IsMergeable() && !merged && !merging,
				MergeError:      state.failures[ref],
			}

			if pr.IssueKey != "" && cache != nil {
				issue, is := cache.Lookup(pr.IssueKey)
				pv.IssueState = is.String()
				pv.Issue = NewIssueView(issue)
			}

			rv.PullRequests = append(rv.PullRequests, pv)
		}
		view.Repositories = append(view.Repositories, rv)
	}
	return view
}

// ProjectRepositories renders a bare snapshot without any session state.
func ProjectRepositories(repos []model.Repository) []RepositoryView {
	state := NewSessionState()
	state.ReplaceSnapshot(repos, false)
	return buildView(state, nil).Repositories
}
