package model

// SourceMap is one row per extracted file, mapping the generated flat
// name back to the path inside the archive. Rows are write-once; the
// table is recreated on every unpack run.
type SourceMap struct {
	FlatName     string `json:"flat_name" gorm:"column:flat_name;primaryKey"`
	OriginalPath string `json:"original_path" gorm:"column:original_path;not null"`
	RepoName     string `json:"repo_name" gorm:"column:repo_name"`
	BranchName   string `json:"branch_name" gorm:"column:branch_name"`
	CommitId     string `json:"commit_id" gorm:"column:commit_id"`
}

func (s *SourceMap) TableName() string {
	return "source_map"
}
