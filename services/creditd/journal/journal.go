// Package journal persists every committed protocol event.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ripe/core/events"
	"ripe/core/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

var errUnknownDriver = errors.New("journal: unknown driver")

// Record is one journalled event.
type Record struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type       string    `gorm:"size:64;index" json:"type"`
	Block      uint64    `gorm:"index" json:"block"`
	Account    string    `gorm:"size:42;index" json:"user,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName pins the table name across drivers.
func (Record) TableName() string { return "credit_events" }

// Event decodes the record back into its wire form.
func (r Record) Event() (types.Event, error) {
	out := types.Event{Type: r.Type, Block: r.Block}
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out.Attributes); err != nil {
		return types.Event{}, fmt.Errorf("journal: decode record %d: %w", r.ID, err)
	}
	return out, nil
}

// Open connects to the journal database and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the journal tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Journal writes events into the database. It satisfies events.Emitter.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// New wraps db.
func New(db *gorm.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger, now: time.Now}
}

// Emit implements events.Emitter. Write failures are logged; the protocol
// state has already committed.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || j.db == nil || evt == nil {
		return
	}
	if _, err := j.Append(context.Background(), evt.Event()); err != nil {
		j.logger.Error("journal: append failed", "type", evt.EventType(), "error", err)
	}
}

// Append stores evt and returns its record.
func (j *Journal) Append(ctx context.Context, evt *types.Event) (Record, error) {
	if evt == nil {
		return Record{}, fmt.Errorf("journal: nil event")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return Record{}, fmt.Errorf("journal: encode attributes: %w", err)
	}
	rec := Record{
		Type:       evt.Type,
		Block:      evt.Block,
		Account:    evt.Attributes["user"],
		Attributes: string(attrs),
		CreatedAt:  j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Record{}, fmt.Errorf("journal: insert: %w", err)
	}
	return rec, nil
}

// Filter narrows List.
type Filter struct {
	AfterID uint64
	Type    string
	User    string
	Limit   int
}

// List returns records in insertion order.
func (j *Journal) List(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := j.db.WithContext(ctx).Model(&Record{}).Where("id > ?", f.AfterID)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.User != "" {
		q = q.Where("account = ?", f.User)
	}
	var out []Record
	if err := q.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return out, nil
}
