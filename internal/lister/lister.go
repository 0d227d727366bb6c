// Package lister turns a language name and a count into the most
// starred repositories of that language, each with its default branch
// and the branch's head commit.
//
// When a default branch or its head commit cannot be resolved the
// record is kept with an empty LatestCommitSHA and a warning is
// logged; records are never silently dropped.

package lister

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/minhdq/repo-miner/cfg"
	githubapi "github.com/minhdq/repo-miner/internal/github_api"
	"github.com/minhdq/repo-miner/internal/limiter"
	"github.com/minhdq/repo-miner/internal/model"
	"github.com/minhdq/repo-miner/pkg/apperror"
	"github.com/minhdq/repo-miner/pkg/log"
)

// RepoRecord is one listed repository. Immutable once fetched.
type RepoRecord struct {
	ID              int64
	Owner           string
	Name            string
	StarCount       int
	DefaultBranch   string
	LatestCommitSHA string
}

// Identifier returns the provider's owner/name form.
func (r RepoRecord) Identifier() string {
	return r.Owner + "/" + r.Name
}

// Publisher is the part of pkg/kafka.Producer the lister needs.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

type Lister struct {
	Logger      log.Logger
	Config      *cfg.Config
	Caller      *githubapi.Caller
	Publisher   Publisher
	rateLimiter *limiter.RateLimiter
}

func NewLister(logger log.Logger, config *cfg.Config) (*Lister, error) {
	return &Lister{
		Logger:      logger,
		Config:      config,
		Caller:      githubapi.NewCaller(logger, config),
		rateLimiter: limiter.NewRateLimiter(config.GithubApi.RequestsPerSecond),
	}, nil
}

// List returns up to n records sorted by star count descending, ties
// in the provider's response order. Fewer than n matching repositories
// is not an error; zero is.
func (l *Lister) List(ctx context.Context, language string, n int) ([]RepoRecord, error) {
	if n <= 0 {
		return []RepoRecord{}, nil
	}

	perPage := l.Config.GithubApi.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}

	// The search API caps results at 1000 per query
	maxApiResults := 1000

	records := make([]RepoRecord, 0, n)
	page := 1

	for len(records) < n {
		if (page-1)*perPage >= maxApiResults {
			break
		}

		l.throttle()
		items, err := l.Caller.SearchRepos(ctx, language, l.Config.GithubApi.MinStars, page, perPage)
		if err != nil {
			return nil, err
		}

		if len(items) == 0 {
			break
		}

		for _, item := range items {
			if len(records) >= n {
				break
			}
			record, err := l.resolve(ctx, item)
			if err != nil {
				return nil, err
			}
			records = append(records, *record)
		}

		page++
	}

	if len(records) == 0 {
		return nil, apperror.NotFound("no repositories found for language %q", language)
	}

	if l.Publisher != nil {
		if err := l.publish(ctx, records); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// resolve fills in the default branch and head commit for one search
// result via the secondary lookups.
func (l *Lister) resolve(ctx context.Context, item githubapi.RepoResponse) (*RepoRecord, error) {
	owner := item.Owner.Login
	name := item.Name
	if owner == "" {
		owner, name = splitFullName(item.FullName)
	}

	record := &RepoRecord{
		ID:            item.Id,
		Owner:         owner,
		Name:          name,
		StarCount:     int(item.StargazersCount),
		DefaultBranch: item.DefaultBranch,
	}

	// Search results usually carry the default branch already; fall
	// back to the repository endpoint when they do not.
	if record.DefaultBranch == "" {
		l.throttle()
		repo, err := l.Caller.CallRepo(ctx, owner, name)
		if err != nil {
			if isNotFound(err) {
				l.Logger.Warn(ctx, "Cannot resolve default branch of %s: %v", record.Identifier(), err)
				return record, nil
			}
			return nil, err
		}
		record.DefaultBranch = repo.DefaultBranch
	}

	l.throttle()
	branch, err := l.Caller.CallBranch(ctx, owner, name, record.DefaultBranch)
	if err != nil {
		if isNotFound(err) {
			l.Logger.Warn(ctx, "Cannot resolve head commit of %s: %v", record.Identifier(), err)
			return record, nil
		}
		return nil, err
	}
	record.LatestCommitSHA = branch.Commit.SHA

	return record, nil
}

func (l *Lister) publish(ctx context.Context, records []RepoRecord) error {
	for _, record := range records {
		msg := model.RepoMessage{
			ID:            int(record.ID),
			User:          record.Owner,
			Name:          record.Name,
			StarCount:     record.StarCount,
			DefaultBranch: record.DefaultBranch,
			CommitSha:     record.LatestCommitSHA,
		}
		if err := l.Publisher.Publish(ctx, "repo", msg); err != nil {
			return err
		}
	}
	l.Logger.Info(ctx, "Published %d repositories", len(records))
	return nil
}

func (l *Lister) throttle() {
	for !l.rateLimiter.Allow() {
		time.Sleep(time.Duration(l.Config.GithubApi.ThrottleDelay) * time.Millisecond)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}

func splitFullName(fullName string) (string, string) {
	parts := strings.Split(fullName, "/")
	if len(parts) > 1 {
		return parts[0], parts[1]
	}
	return "unknown", fullName
}
