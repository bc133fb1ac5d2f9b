package migrations

import (
	"github.com/jmylchreest/m3uclean/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
//   - 001: Create run_records
//   - 002: Add the (job_name, started_at) index used by history listings
func AllMigrations() []Migration {
	return []Migration{
		migration001RunRecords(),
		migration002JobStartedIndex(),
	}
}

func migration001RunRecords() Migration {
	return Migration{
		Version:     "001",
		Description: "Create run_records table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.RunRecord{})
		},
	}
}

// jobStartedIndex declares the composite index so the GORM migrator can
// create it portably across dialects.
type jobStartedIndex struct {
	JobName   string `gorm:"index:idx_run_records_job_started,priority:1"`
	StartedAt string `gorm:"index:idx_run_records_job_started,priority:2"`
}

func (jobStartedIndex) TableName() string {
	return models.RunRecord{}.TableName()
}

func migration002JobStartedIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Index run_records by job_name and started_at",
		Up: func(tx *gorm.DB) error {
			migrator := tx.Migrator()
			if migrator.HasIndex(&jobStartedIndex{}, "idx_run_records_job_started") {
				return nil
			}
			return migrator.CreateIndex(&jobStartedIndex{}, "idx_run_records_job_started")
		},
	}
}
