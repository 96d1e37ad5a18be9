package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"machine-monitor-backend/internal/model"
)

// ErrNotFound is returned when a machine lookup, update or delete matches no row.
var ErrNotFound = errors.New("store: machine not found")

// DefaultFaultLimit is how many fault log rows ListRecentFaults returns when asked for none.
const DefaultFaultLimit = 50

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// Broadcast loop
	ListMachineSummaries(ctx context.Context) ([]model.MachineSummary, error)
	RecordFault(ctx context.Context, machineID, faultType, description string) (model.FaultLog, error)

	// Record API
	ListMachines(ctx context.Context) ([]model.Machine, error)
	GetMachine(ctx context.Context, id string) (model.Machine, error)
	CreateMachine(ctx context.Context, m *model.Machine) error
	UpdateMachine(ctx context.Context, id string, m *model.Machine) error
	DeleteMachine(ctx context.Context, id string) error
	ListRecentFaults(ctx context.Context, limit int) ([]model.FaultLog, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// ListMachineSummaries reads id, name and status of every machine in primary-key order.
func (s *gormStore) ListMachineSummaries(ctx context.Context) ([]model.MachineSummary, error) {
	var rows []model.MachineSummary
	err := s.db.WithContext(ctx).
		Model(&model.Machine{}).
		Select("id", "name", "status").
		Order("id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list machine summaries: %w", err)
	}
	return rows, nil
}

// RecordFault appends a fault log row and flips the machine to Fault in one transaction.
// The status update is unconditional; a machine under maintenance is overwritten too.
func (s *gormStore) RecordFault(ctx context.Context, machineID, faultType, description string) (model.FaultLog, error) {
	entry := model.FaultLog{
		MachineID:   machineID,
		FaultType:   faultType,
		Description: description,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to insert fault log for machine %s: %w", machineID, err)
		}
		if err := tx.Model(&model.Machine{}).
			Where("id = ?", machineID).
			Update("status", model.StatusFault).Error; err != nil {
			return fmt.Errorf("failed to set machine %s to fault: %w", machineID, err)
		}
		return nil
	})
	if err != nil {
		return model.FaultLog{}, err
	}
	return entry, nil
}

func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("id").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return machines, nil
}

func (s *gormStore) GetMachine(ctx context.Context, id string) (model.Machine, error) {
	var machine model.Machine
	err := s.db.WithContext(ctx).First(&machine, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Machine{}, ErrNotFound
	}
	if err != nil {
		return model.Machine{}, fmt.Errorf("failed to get machine %s: %w", id, err)
	}
	return machine, nil
}

func (s *gormStore) CreateMachine(ctx context.Context, m *model.Machine) error {
	if m.Status == "" {
		m.Status = model.StatusActive
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create machine %s: %w", m.ID, err)
	}
	return nil
}

// UpdateMachine replaces every descriptive field and the status of machine id.
// Zero values are written as well; the id itself never changes.
func (s *gormStore) UpdateMachine(ctx context.Context, id string, m *model.Machine) error {
	if m.Status == "" {
		m.Status = model.StatusActive
	}
	res := s.db.WithContext(ctx).
		Model(&model.Machine{}).
		Where("id = ?", id).
		Select("*").
		Omit("id", "created_at").
		Updates(m)
	if res.Error != nil {
		return fmt.Errorf("failed to update machine %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	m.ID = id
	return nil
}

// DeleteMachine removes the machine row. Fault history referencing it is kept.
func (s *gormStore) DeleteMachine(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Machine{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete machine %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecentFaults returns the newest fault log rows first.
func (s *gormStore) ListRecentFaults(ctx context.Context, limit int) ([]model.FaultLog, error) {
	if limit <= 0 {
		limit = DefaultFaultLimit
	}
	var faults []model.FaultLog
	if err := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Limit(limit).
		Find(&faults).Error; err != nil {
		return nil, fmt.Errorf("failed to list faults: %w", err)
	}
	return faults, nil
}
