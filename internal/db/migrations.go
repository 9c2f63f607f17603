package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS store_records (
		collection VARCHAR(255) NOT NULL,
		record_key VARCHAR(255) NOT NULL,
		data JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, record_key)
	);`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'store_records' AND column_name = 'updated_at') THEN
			ALTER TABLE store_records ADD COLUMN updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW();
		END IF;
	END
	$$;`,
	`CREATE INDEX IF NOT EXISTS idx_store_records_collection ON store_records (collection);`,
	`CREATE INDEX IF NOT EXISTS idx_store_records_document_type ON store_records ((data->>'documentType')) WHERE data->>'documentType' IS NOT NULL;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
