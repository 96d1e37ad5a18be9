package model

import "time"

// FaultLog is an append-only record of a detected fault.
//
// MachineID is not a gorm association, so no foreign key is created and deleting a machine
// leaves its fault history in place.
type FaultLog struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MachineID   string    `gorm:"size:64;index" json:"machine_id"`
	FaultType   string    `gorm:"size:64" json:"fault_type"`
	Description string    `json:"description"`
	Timestamp   time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}
