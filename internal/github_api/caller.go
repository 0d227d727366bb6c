// Package githubapi provides a caller for the GitHub REST API. It is
// responsible for building the request URLs from the configured
// templates, attaching the access token when one is configured, and
// decoding the responses into DTOs.

package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/minhdq/repo-miner/cfg"
	"github.com/minhdq/repo-miner/pkg/apperror"
	"github.com/minhdq/repo-miner/pkg/log"
)

type Caller struct {
	Logger log.Logger
	Config *cfg.Config
	client *http.Client
}

func NewCaller(logger log.Logger, config *cfg.Config) *Caller {
	return &Caller{
		Logger: logger,
		Config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HandleRateLimit inspects the rate limit headers of a response
func (c *Caller) HandleRateLimit(ctx context.Context, resp *http.Response) (bool, error) {
	rateRemaining := resp.Header.Get("X-RateLimit-Remaining")

	if resp.StatusCode == http.StatusForbidden && rateRemaining == "0" {
		resetTimeStr := resp.Header.Get("X-RateLimit-Reset")
		resetTimeInt, err := strconv.ParseInt(resetTimeStr, 10, 64)

		if err != nil {
			// Reset time cannot be parsed, fall back to the configured wait
			waitTime := time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute
			c.Logger.Warn(ctx, "Rate limit hit, reset time unknown, wait %v", waitTime)
			return true, apperror.Network("rate limit reached, wait %v", waitTime)
		}

		resetTime := time.Unix(resetTimeInt, 0)
		waitTime := time.Until(resetTime)

		if waitTime < 0 {
			waitTime = time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute
		}

		c.Logger.Warn(ctx, "Rate limit hit, wait %v until %v",
			waitTime.Round(time.Second), resetTime.Format(time.RFC3339))

		return true, apperror.Network("rate limit reached, reset at %v", resetTime.Format(time.RFC3339))
	}

	return false, nil
}

func (c *Caller) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.Logger.Error(ctx, "Cannot build request: %v", err)
		return nil, err
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")

	if c.Config.GithubApi.AccessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s", c.Config.GithubApi.AccessToken))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.Logger.Error(ctx, "Cannot send request: %v", err)
		return nil, apperror.Network("cannot reach %s: %v", url, err)
	}

	// Check the rate limit before the status code
	isRateLimited, rateLimitErr := c.HandleRateLimit(ctx, resp)
	if isRateLimited {
		resp.Body.Close()
		return nil, rateLimitErr
	}

	return resp, nil
}

// SearchRepos calls the repository search API for one page of the
// most starred repositories of a language.
func (c *Caller) SearchRepos(ctx context.Context, language string, minStars, page, perPage int) ([]RepoResponse, error) {
	baseUrl := c.Config.GithubApi.SearchApiUrl
	baseUrl = strings.ReplaceAll(baseUrl, "{language}", language)
	baseUrl = strings.ReplaceAll(baseUrl, "{minstars}", strconv.Itoa(minStars))

	// Ensure the API URL has the correct sort parameters
	if !strings.Contains(baseUrl, "sort=stars") {
		if strings.Contains(baseUrl, "?") {
			baseUrl += "&sort=stars&order=desc"
		} else {
			baseUrl += "?sort=stars&order=desc"
		}
	}

	fullUrl := fmt.Sprintf("%s&per_page=%d&page=%d", baseUrl, perPage, page)
	c.Logger.Debug(ctx, "Calling GitHub API: %s", fullUrl)

	resp, err := c.get(ctx, fullUrl)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Network("search request failed: %v", resp.Status)
	}

	rawResponse := &SearchResponse{}
	if err := json.NewDecoder(resp.Body).Decode(rawResponse); err != nil {
		return nil, apperror.Network("cannot decode search response: %v", err)
	}

	// Validate the response at the boundary
	for _, item := range rawResponse.Items {
		if item.FullName == "" {
			return nil, apperror.Network("malformed search response: item %d has no full_name", item.Id)
		}
	}

	c.Logger.Debug(ctx, "Total repositories found: %d, page: %d, items received: %d",
		rawResponse.TotalCount, page, len(rawResponse.Items))

	if page*perPage > 1000 {
		c.Logger.Warn(ctx, "GitHub API only provides access to the first 1,000 search results")
	}

	return rawResponse.Items, nil
}

// CallRepo fetches a single repository, used to resolve the default
// branch when the search result does not carry it.
func (c *Caller) CallRepo(ctx context.Context, user, repo string) (*RepoResponse, error) {
	repoUrl := strings.ReplaceAll(c.Config.GithubApi.RepoApiUrl, "{user}", user)
	repoUrl = strings.ReplaceAll(repoUrl, "{repo}", repo)

	resp, err := c.get(ctx, repoUrl)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperror.NotFound("repository %s/%s not found", user, repo)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Network("repo request failed: %v", resp.Status)
	}

	repoResponse := &RepoResponse{}
	if err := json.NewDecoder(resp.Body).Decode(repoResponse); err != nil {
		return nil, apperror.Network("cannot decode repo response: %v", err)
	}

	if repoResponse.DefaultBranch == "" {
		return nil, apperror.NotFound("repository %s/%s has no default branch", user, repo)
	}

	return repoResponse, nil
}

// CallBranch fetches a branch and its head commit.
func (c *Caller) CallBranch(ctx context.Context, user, repo, branch string) (*BranchResponse, error) {
	branchUrl := strings.ReplaceAll(c.Config.GithubApi.BranchApiUrl, "{user}", user)
	branchUrl = strings.ReplaceAll(branchUrl, "{repo}", repo)
	branchUrl = strings.ReplaceAll(branchUrl, "{branch}", branch)

	resp, err := c.get(ctx, branchUrl)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperror.NotFound("branch %s of %s/%s not found", branch, user, repo)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Network("branch request failed: %v", resp.Status)
	}

	branchResponse := &BranchResponse{}
	if err := json.NewDecoder(resp.Body).Decode(branchResponse); err != nil {
		return nil, apperror.Network("cannot decode branch response: %v", err)
	}

	if branchResponse.Commit.SHA == "" {
		return nil, apperror.NotFound("branch %s of %s/%s has no head commit", branch, user, repo)
	}

	return branchResponse, nil
}
