package model

import (
	"context"
	"fmt"
	"time"

	"github.com/minhdq/repo-miner/cfg"
	"github.com/minhdq/repo-miner/pkg/db"
	"github.com/minhdq/repo-miner/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repo is one warehouse row per listed repository, keyed by the
// provider's repository id.
type Repo struct {
	Model
	ID            int       `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	User          string    `json:"user" gorm:"column:user;type:varchar(255);not null"`
	Name          string    `json:"name" gorm:"column:name;type:varchar(255);not null"`
	StarCount     int       `json:"star_count" gorm:"column:star_count;default:0"`
	DefaultBranch string    `json:"default_branch" gorm:"column:default_branch;type:varchar(255)"`
	CommitSha     string    `json:"commit_sha" gorm:"column:commit_sha;type:varchar(64)"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
	Mysql         *db.Mysql `gorm:"-"`
}

func NewRepo(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*Repo, error) {
	repo := &Repo{
		Model: Model{
			Config: config,
			Logger: logger,
		},
		Mysql: mysql,
	}
	return repo, nil
}

func (r *Repo) TableName() string {
	return "repos"
}

func (r *Repo) Create(id int, user, name string, starCount int, defaultBranch, commitSha string) error {
	ctx := context.Background()
	user = TruncateString(user, 250)
	name = TruncateString(name, 250)

	newRepo := &Repo{}
	newRepo.ID = id
	newRepo.User = user
	newRepo.Name = name
	newRepo.StarCount = starCount
	newRepo.DefaultBranch = defaultBranch
	newRepo.CommitSha = commitSha
	newRepo.CreatedAt = time.Now()
	newRepo.UpdatedAt = time.Now()

	db, err := r.Mysql.Db()
	if err != nil {
		r.Logger.Error(ctx, "Failed to get database connection: %v", err)
		return err
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"star_count", "default_branch", "commit_sha", "updated_at"}),
	}).Create(newRepo).Error; err != nil {
		r.Logger.Error(ctx, "Failed to create repo: %v", err)
		return err
	}

	return nil
}

func (r *Repo) CreateBatch(repoMessages []RepoMessage) error {
	db, err := r.Mysql.Db()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	repos := make([]Repo, 0, len(repoMessages))
	now := time.Now()

	for _, msg := range repoMessages {
		repo := Repo{
			ID:            msg.ID,
			User:          TruncateString(msg.User, 250),
			Name:          TruncateString(msg.Name, 250),
			StarCount:     msg.StarCount,
			DefaultBranch: msg.DefaultBranch,
			CommitSha:     msg.CommitSha,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		repos = append(repos, repo)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"star_count", "default_branch", "commit_sha", "updated_at"}),
		}).CreateInBatches(repos, 100)

		if result.Error != nil {
			return fmt.Errorf("failed to batch create repositories: %w", result.Error)
		}

		return nil
	})
}
