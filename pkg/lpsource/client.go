// Package lpsource provides the landing-page content capability: fetching
// the current copy of an LP and opening a pull request with proposed
// changes.
package lpsource

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/rotisserie/eris"
)

// Content is the structured copy of a landing page.
type Content struct {
	URL      string   `json:"url"`
	Headline string   `json:"headline"`
	Hero     string   `json:"hero"`
	CTA      string   `json:"cta"`
	Benefits []string `json:"benefits"`
}

// Suggestion is one proposed copy change.
type Suggestion struct {
	Section   string `json:"section"`
	Current   string `json:"current"`
	Proposed  string `json:"proposed"`
	Rationale string `json:"rationale"`
}

// Client defines the LP content operations.
type Client interface {
	// FetchContent loads the current copy of the page at url.
	FetchContent(ctx context.Context, url string) (*Content, error)
	// CreatePR opens a pull request applying the suggestions and returns
	// its URL.
	CreatePR(ctx context.Context, url string, suggestions []Suggestion) (string, error)
}

type stubClient struct {
	repoOwner string
	repoName  string
}

// NewStub creates an in-process client that synthesizes page copy from the
// URL and fabricates PR URLs under the configured repository.
func NewStub(repoOwner, repoName string) Client {
	if repoOwner == "" {
		repoOwner = "unson"
	}
	if repoName == "" {
		repoName = "lp-pages"
	}
	return &stubClient{repoOwner: repoOwner, repoName: repoName}
}

func (c *stubClient) FetchContent(ctx context.Context, url string) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(url) == "" {
		return nil, eris.New("lpsource: url required")
	}

	slug := pageSlug(url)
	return &Content{
		URL:      url,
		Headline: fmt.Sprintf("Launch %s today", slug),
		Hero:     fmt.Sprintf("The fastest way to get started with %s.", slug),
		CTA:      "Start free trial",
		Benefits: []string{
			"Set up in minutes",
			"No credit card required",
			"Cancel anytime",
		},
	}, nil
}

func (c *stubClient) CreatePR(ctx context.Context, url string, suggestions []Suggestion) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(suggestions) == 0 {
		return "", eris.New("lpsource: no suggestions to apply")
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(url))
	for _, s := range suggestions {
		_, _ = h.Write([]byte(s.Section))
		_, _ = h.Write([]byte(s.Proposed))
	}
	return fmt.Sprintf("https://github.com/%s/%s/pull/%d", c.repoOwner, c.repoName, h.Sum32()%9000+1000), nil
}

// pageSlug extracts a readable name from the last URL path segment.
func pageSlug(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	trimmed = strings.NewReplacer("-", " ", "_", " ").Replace(trimmed)
	if trimmed == "" || strings.Contains(trimmed, ".") {
		return "your product"
	}
	return trimmed
}
