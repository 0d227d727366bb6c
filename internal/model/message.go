package model

// RepoMessage is the repository payload published to Kafka
type RepoMessage struct {
	ID            int    `json:"id"`
	User          string `json:"user"`
	Name          string `json:"name"`
	StarCount     int    `json:"star_count"`
	DefaultBranch string `json:"default_branch"`
	CommitSha     string `json:"commit_sha"`
}
