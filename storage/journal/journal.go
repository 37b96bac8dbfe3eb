package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stakevault/core/events"
)

// Record is one committed event as stored in the journal.
type Record struct {
	Seq         uint64    `gorm:"primaryKey;autoIncrement"`
	ID          uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	OperationID uuid.UUID `gorm:"type:uuid;index"`
	Type        string    `gorm:"index;not null"`
	Attributes  string    `gorm:"type:text"`
	Timestamp   uint64    `gorm:"index"`
	CreatedAt   time.Time
}

// TableName pins the table name independent of gorm's pluralisation.
func (Record) TableName() string { return "event_journal" }

// Decoded returns the attribute map.
func (r Record) Decoded() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, fmt.Errorf("journal: decode attributes: %w", err)
	}
	return out, nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type        string
	OperationID uuid.UUID
	Since       uint64
	Limit       int
}

// Journal is an append-only SQLite log of committed events.
type Journal struct {
	db *gorm.DB
}

var errClosed = errors.New("journal: closed")

// Open opens or creates the journal at path. An empty path opens a private
// in-memory database.
func Open(path string) (*Journal, error) {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append stores evts under operationID in a single transaction. Each
// beforeCommit hook runs inside that transaction after the rows are
// inserted; a failing hook rolls the rows back. Hooks run even when there
// is nothing to store.
func (j *Journal) Append(ctx context.Context, operationID uuid.UUID, evts []events.Event, beforeCommit ...func() error) error {
	if j == nil || j.db == nil {
		return errClosed
	}
	records := make([]Record, 0, len(evts))
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		rendered := evt.Event()
		if rendered == nil {
			continue
		}
		attrs, err := json.Marshal(rendered.Attributes)
		if err != nil {
			return fmt.Errorf("journal: encode attributes: %w", err)
		}
		records = append(records, Record{
			ID:          uuid.New(),
			OperationID: operationID,
			Type:        rendered.Type,
			Attributes:  string(attrs),
			Timestamp:   rendered.Timestamp,
		})
	}
	if len(records) == 0 {
		return runHooks(beforeCommit)
	}
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("journal: append: %w", err)
		}
		return runHooks(beforeCommit)
	})
}

func runHooks(hooks []func() error) error {
	for _, hook := range hooks {
		if err := hook(); err != nil {
			return err
		}
	}
	return nil
}

// List returns records in append order.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Record, error) {
	if j == nil || j.db == nil {
		return nil, errClosed
	}
	query := j.db.WithContext(ctx).Model(&Record{}).Order("seq asc")
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	if filter.OperationID != uuid.Nil {
		query = query.Where("operation_id = ?", filter.OperationID)
	}
	if filter.Since > 0 {
		query = query.Where("timestamp >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var records []Record
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	if j == nil || j.db == nil {
		return 0, errClosed
	}
	var n int64
	if err := j.db.WithContext(ctx).Model(&Record{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	j.db = nil
	return sqlDB.Close()
}
