package web

import (
	vm "github.com/ericfisherdev/mergebridge/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/mergebridge/internal/application"
)

// toDashboardViewModel converts a session view into the dashboard view model.
func toDashboardViewModel(view application.SessionView, csrf string) vm.DashboardViewModel {
	out := vm.DashboardViewModel{
		SessionID:           view.ID,
		CSRFToken:           csrf,
		Polling:             view.Polling,
		IssueTrackerEnabled: view.IssueTrackerEnabled,
		Repositories:        make([]vm.RepoViewModel, 0, len(view.Repositories)),
	}

	for _, repo := range view.Repositories {
		rv := vm.RepoViewModel{
			FullName:        repo.FullName,
			URL:             repo.URL,
			Language:        repo.Language,
			DescriptionHTML: RenderDescription(repo.Description),
			Unavailable:     repo.PullRequestsUnavailable,
			PullRequests:    make([]vm.PRViewModel, 0, len(repo.PullRequests)),
		}
		for _, pr := range repo.PullRequests {
			rv.PullRequests = append(rv.PullRequests, toPRViewModel(repo, pr))
		}
		out.Repositories = append(out.Repositories, rv)
	}

	return out
}

func toPRViewModel(repo application.RepositoryView, pr application.PullRequestView) vm.PRViewModel {
	label, class := statusLabel(pr)

	out := vm.PRViewModel{
		Owner:       repo.Owner,
		Repo:        repo.Name,
		Number:      pr.Number,
		Title:       pr.Title,
		URL:         pr.URL,
		Branch:      pr.Branch,
		BaseBranch:  pr.BaseBranch,
		IssueKey:    pr.IssueKey,
		IssueState:  pr.IssueState,
		StatusLabel: label,
		StatusClass: class,
		CanMerge:    pr.CanMerge,
		Settling:    pr.Settling,
		MergeError:  pr.MergeError,
	}
	if pr.Issue != nil {
		out.IssueSummary = pr.Issue.Summary
		out.IssueType = pr.Issue.Type
		out.IssueStatus = pr.Issue.Status
	}
	return out
}

// statusLabel picks the merge badge for a pull request. Merge progress wins
// over upstream mergeability.
func statusLabel(pr application.PullRequestView) (string, string) {
	switch {
	case pr.Merged:
		return "Merged", "status-merged"
	case pr.Merging:
		return "Merging", "status-pending"
	case pr.CanMerge:
		return "Mergeable", "status-ok"
	case pr.MergeableStatus == "conflicted" || pr.MergeableState == "dirty":
		return "Conflicted", "status-conflict"
	case pr.MergeableStatus == "mergeable":
		return "Blocked", "status-conflict"
	default:
		return "Checking", "status-pending"
	}
}
