package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/ingest-gate/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createBatchesTable(),
		createBatchArrivalsTable(),
	})

	return m.Migrate()
}

func createBatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_batches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BatchModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_batches_status ON batches (status)`,
				`CREATE INDEX IF NOT EXISTS idx_batches_terminal_updated ON batches (updated_at) WHERE status IN ('JOB_SUCCEEDED', 'JOB_FAILED')`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BatchModel{})
		},
	}
}

func createBatchArrivalsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_batch_arrivals",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ArrivalModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_arrivals_batch_id ON batch_arrivals (batch_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ArrivalModel{})
		},
	}
}
