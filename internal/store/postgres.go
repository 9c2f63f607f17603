package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pgInsufficientPrivilege = "42501"

type recordRow struct {
	Collection string    `gorm:"column:collection;primaryKey"`
	RecordKey  string    `gorm:"column:record_key;primaryKey"`
	Data       string    `gorm:"column:data;type:jsonb"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (recordRow) TableName() string {
	return "store_records"
}

// PostgresStore keeps every record as a jsonb row keyed by (collection, record_key).
type PostgresStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND record_key = ?", collection, key).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, translate(err)
	}
	return decodeRow(row)
}

func (s *PostgresStore) Set(ctx context.Context, collection, key string, rec Record, mode Mode) error {
	row, err := s.encodeRow(collection, key, rec)
	if err != nil {
		return err
	}

	updates := clause.AssignmentColumns([]string{"data", "updated_at"})
	if mode == ModeMerge {
		updates = clause.Assignments(map[string]any{
			"data":       gorm.Expr("store_records.data || EXCLUDED.data"),
			"updated_at": gorm.Expr("EXCLUDED.updated_at"),
		})
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "record_key"}},
		DoUpdates: updates,
	}).Create(&row).Error
	return translate(err)
}

func (s *PostgresStore) Create(ctx context.Context, collection, key string, rec Record) (bool, error) {
	row, err := s.encodeRow(collection, key, rec)
	if err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	err := s.db.WithContext(ctx).
		Where("collection = ? AND record_key = ?", collection, key).
		Delete(&recordRow{}).Error
	return translate(err)
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([]Record, error) {
	var rows []recordRow
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("record_key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *PostgresStore) encodeRow(collection, key string, rec Record) (recordRow, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return recordRow{}, fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	return recordRow{
		Collection: collection,
		RecordKey:  key,
		Data:       string(raw),
		UpdatedAt:  s.now().UTC(),
	}, nil
}

func decodeRow(row recordRow) (Record, error) {
	rec, err := unmarshalRecord([]byte(row.Data))
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", row.Collection, row.RecordKey, err)
	}
	return rec, nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInsufficientPrivilege {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, pgErr.Message)
	}
	return err
}
