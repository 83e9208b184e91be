// Package github reads markdown documentation from a GitHub repository.
package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client wraps the GitHub API client with rate limiting support
type Client struct {
	*github.Client
}

const defaultTimeout = 30 * time.Second

// ClientOptions configures NewClient. BaseURL overrides api.github.com and
// must point at the REST root. Timeout bounds each request, 30s by default.
type ClientOptions struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a GitHub client that waits out primary and secondary rate
// limits. A token raises the limits and grants access to private repositories.
func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}
	rateLimiter.Timeout = opts.Timeout
	if rateLimiter.Timeout <= 0 {
		rateLimiter.Timeout = defaultTimeout
	}

	ghClient := github.NewClient(rateLimiter)
	if opts.Token != "" {
		ghClient = ghClient.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		ghClient.BaseURL = u
	}

	return &Client{Client: ghClient}, nil
}
