package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orris-inc/ticketwatch/internal/domain/relay"
)

const watermarkName = "last_check"

// StateEntryModel is one row of a per-ticket mapping.
type StateEntryModel struct {
	Mapping  string `gorm:"primaryKey;size:64;column:mapping"`
	TicketID int    `gorm:"primaryKey;column:ticket_id"`
	Value    string `gorm:"column:value;not null"`
}

func (StateEntryModel) TableName() string {
	return "relay_state_entries"
}

// WatermarkModel holds single named timestamps, currently only the fetch
// watermark.
type WatermarkModel struct {
	Name  string `gorm:"primaryKey;size:64;column:name"`
	Value string `gorm:"column:value;not null"`
}

func (WatermarkModel) TableName() string {
	return "relay_watermarks"
}

// StateStore is the sqlite-backed implementation of relay.StateStore.
// Every multi-row rewrite runs inside a transaction so a crash mid-write
// never leaves a reader with a partially written mapping.
type StateStore struct {
	db *gorm.DB
}

func NewStateStore(db *gorm.DB) *StateStore {
	return &StateStore{db: db}
}

var _ relay.StateStore = (*StateStore)(nil)

func (s *StateStore) Load(ctx context.Context, mapping relay.Mapping) (map[int]string, error) {
	var rows []StateEntryModel
	if err := s.db.WithContext(ctx).
		Where("mapping = ?", string(mapping)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load mapping %s: %w", mapping, err)
	}

	entries := make(map[int]string, len(rows))
	for _, row := range rows {
		entries[row.TicketID] = row.Value
	}
	return entries, nil
}

func (s *StateStore) Save(ctx context.Context, mapping relay.Mapping, entries map[int]string) error {
	ids := make([]int, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("mapping = ?", string(mapping)).
			Delete(&StateEntryModel{}).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		rows := make([]StateEntryModel, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, StateEntryModel{
				Mapping:  string(mapping),
				TicketID: id,
				Value:    entries[id],
			})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save mapping %s: %w", mapping, err)
	}
	return nil
}

func (s *StateStore) Upsert(ctx context.Context, mapping relay.Mapping, id int, value string) error {
	row := StateEntryModel{
		Mapping:  string(mapping),
		TicketID: id,
		Value:    value,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mapping"}, {Name: "ticket_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %s[%d]: %w", mapping, id, err)
	}
	return nil
}

func (s *StateStore) Remove(ctx context.Context, mapping relay.Mapping, id int) error {
	err := s.db.WithContext(ctx).
		Where("mapping = ? AND ticket_id = ?", string(mapping), id).
		Delete(&StateEntryModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove %s[%d]: %w", mapping, id, err)
	}
	return nil
}

func (s *StateStore) RemoveMany(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("ticket_id IN ?", ids).
			Delete(&StateEntryModel{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to purge tickets %v: %w", ids, err)
	}
	return nil
}

func (s *StateStore) LoadWatermark(ctx context.Context) (time.Time, bool, error) {
	var row WatermarkModel
	err := s.db.WithContext(ctx).
		Where("name = ?", watermarkName).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load watermark: %w", err)
	}

	t, err := time.Parse(time.RFC3339, row.Value)
	if err != nil {
		// A corrupt watermark is unrecoverable state; treat it as absent
		// rather than wedging every future cycle.
		return time.Time{}, false, nil
	}
	return t.UTC(), true, nil
}

func (s *StateStore) SaveWatermark(ctx context.Context, t time.Time) error {
	row := WatermarkModel{
		Name:  watermarkName,
		Value: t.UTC().Format(time.RFC3339),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}
	return nil
}
