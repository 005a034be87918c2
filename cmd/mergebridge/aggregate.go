package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/mergebridge/internal/application"
)

const titleWidth = 60

var (
	repoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	keyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	mergeOKStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	conflictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func newAggregateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "List open pull requests that reference an issue, once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			repos, err := rt.aggregator(rt.provider()).Aggregate(cmd.Context())
			if err != nil {
				return err
			}

			views := application.ProjectRepositories(repos)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), views)
			}
			writeSummary(cmd.OutOrStdout(), views)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the snapshot as JSON")
	return cmd
}

func writeJSON(w io.Writer, views []application.RepositoryView) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

// writeSummary prints one block per repository with a line per pull request.
// Titles are truncated by display width so CJK titles keep columns aligned.
func writeSummary(w io.Writer, views []application.RepositoryView) {
	if len(views) == 0 {
		fmt.Fprintln(w, hintStyle.Render("No open pull requests reference an issue."))
		return
	}

	for _, repo := range views {
		fmt.Fprintln(w, repoStyle.Render(repo.FullName))
		if repo.PullRequestsUnavailable {
			fmt.Fprintln(w, "  "+conflictStyle.Render("pull requests could not be loaded"))
			continue
		}

		for _, pr := range repo.PullRequests {
			title := runewidth.FillRight(runewidth.Truncate(pr.Title, titleWidth, "…"), titleWidth)
			fmt.Fprintf(w, "  #%-5d %s %s %s\n",
				pr.Number,
				keyStyle.Render(fmt.Sprintf("%-10s", pr.IssueKey)),
				title,
				mergeLabel(pr),
			)
		}
	}
}

func mergeLabel(pr application.PullRequestView) string {
	switch {
	case pr.CanMerge:
		return mergeOKStyle.Render("mergeable")
	case pr.MergeableStatus == "conflicted" || strings.EqualFold(pr.MergeableState, "dirty"):
		return conflictStyle.Render("conflicted")
	default:
		return hintStyle.Render(pr.MergeableStatus)
	}
}
