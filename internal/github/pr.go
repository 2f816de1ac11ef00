// Package github publishes changelog output as pull requests.
package github

import (
	"context"
	"fmt"
	"strings"

	apperrors "sentinel/internal/errors"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// Publisher creates pull requests carrying the rendered PR body.
type Publisher struct {
	client *github.Client
	owner  string
	repo   string
}

func NewPublisher(token, owner, repo string) (*Publisher, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperrors.Authentication("GitHub token is required")
	}
	if owner == "" || repo == "" {
		return nil, apperrors.Validation("GitHub owner and repo are required")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: strings.TrimSpace(token)},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &Publisher{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
	}, nil
}

// CreatePullRequest opens a PR from head into base and returns its number
// and URL.
func (p *Publisher) CreatePullRequest(ctx context.Context, title, body, head, base string) (int, string, error) {
	pr, _, err := p.client.PullRequests.Create(ctx, p.owner, p.repo, &github.NewPullRequest{
		Title: &title,
		Body:  &body,
		Head:  &head,
		Base:  &base,
	})
	if err != nil {
		return 0, "", fmt.Errorf("creating pull request: %w", err)
	}
	return pr.GetNumber(), pr.GetHTMLURL(), nil
}

// UpdatePullRequestBody replaces the body of an existing PR, used when a
// later run supersedes an open changelog PR instead of stacking new ones.
func (p *Publisher) UpdatePullRequestBody(ctx context.Context, number int, body string) error {
	_, _, err := p.client.PullRequests.Edit(ctx, p.owner, p.repo, number, &github.PullRequest{
		Body: &body,
	})
	if err != nil {
		return fmt.Errorf("updating pull request %d: %w", number, err)
	}
	return nil
}

// FindOpenChangelogPR looks for an open PR from head; returns 0 when none
// exists.
func (p *Publisher) FindOpenChangelogPR(ctx context.Context, head string) (int, error) {
	prs, _, err := p.client.PullRequests.List(ctx, p.owner, p.repo, &github.PullRequestListOptions{
		State: "open",
		Head:  p.owner + ":" + head,
	})
	if err != nil {
		return 0, fmt.Errorf("listing pull requests: %w", err)
	}
	if len(prs) == 0 {
		return 0, nil
	}
	return prs[0].GetNumber(), nil
}
