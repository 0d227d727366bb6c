package cfg

type (
	App struct {
		Name    string
		Version string
	}

	Mysql struct {
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	Sqlite struct {
		Path string
	}

	GithubApi struct {
		AccessToken       string
		SearchApiUrl      string
		RepoApiUrl        string
		BranchApiUrl      string
		PerPage           int
		MinStars          int
		RequestsPerSecond int
		ThrottleDelay     int
		RateLimitResetMin int
	}

	KafkaProducer struct {
		TopicRepo string
	}

	Kafka struct {
		Brokers  []string
		Producer KafkaProducer
	}

	Unpack struct {
		DestDir  string
		MaxFiles int
		MaxSize  int64
	}
)

type Config struct {
	App       App
	Mysql     Mysql
	Sqlite    Sqlite
	GithubApi GithubApi
	Kafka     Kafka
	Unpack    Unpack
}
