package cfg

import "os"

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (yl *MockLoader) Load() (*Config, error) {
	return &Config{
		// App
		App: App{
			Name:    "repo-miner",
			Version: "0.0.1",
		},

		// Mysql
		Mysql: Mysql{
			Host:                  "127.0.0.1",
			Password:              "root",
			Username:              "root",
			Port:                  "3306",
			Database:              "repo_miner",
			MaxIdleConnection:     10,
			MaxOpenConnection:     100,
			MaxLifeTimeConnection: 3600,
		},

		// Sqlite
		Sqlite: Sqlite{
			Path: "srcmap.db",
		},

		// GithubApi
		GithubApi: GithubApi{
			AccessToken:       os.Getenv("GITHUB_TOKEN"),
			SearchApiUrl:      "https://api.github.com/search/repositories?q=language:{language}+stars:>{minstars}",
			RepoApiUrl:        "https://api.github.com/repos/{user}/{repo}",
			BranchApiUrl:      "https://api.github.com/repos/{user}/{repo}/branches/{branch}",
			PerPage:           100,
			MinStars:          100,
			RequestsPerSecond: 5,
			ThrottleDelay:     200,
			RateLimitResetMin: 1,
		},

		// Kafka
		Kafka: Kafka{
			Brokers: []string{"127.0.0.1:9092"},
			Producer: KafkaProducer{
				TopicRepo: "repo-miner.repos",
			},
		},

		// Unpack
		Unpack: Unpack{
			DestDir:  ".",
			MaxFiles: 10000,
			MaxSize:  1024 * 1024,
		},
	}, nil
}
