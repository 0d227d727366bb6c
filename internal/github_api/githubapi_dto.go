// Data transfer objects for the GitHub REST API. Responses are decoded
// into explicit structs and validated at the boundary instead of being
// accessed field by field.

package githubapi

type Owner struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

type RepoResponse struct {
	Id              int64  `json:"id"`
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	Owner           Owner  `json:"owner"`
	StargazersCount int64  `json:"stargazers_count"`
	DefaultBranch   string `json:"default_branch"`
	ForksCount      int64  `json:"forks_count"`
	WatchersCount   int64  `json:"watchers_count"`
	OpenIssuesCount int64  `json:"open_issues_count"`
}

type SearchResponse struct {
	TotalCount        int            `json:"total_count"`
	IncompleteResults bool           `json:"incomplete_results"`
	Items             []RepoResponse `json:"items"`
}

type BranchCommit struct {
	SHA string `json:"sha"`
}

type BranchResponse struct {
	Name   string       `json:"name"`
	Commit BranchCommit `json:"commit"`
}
