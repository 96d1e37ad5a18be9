package model

import "time"

// MachineStatus is the operational state of a machine.
type MachineStatus string

const (
	StatusActive           MachineStatus = "Active"
	StatusFault            MachineStatus = "Fault"
	StatusUnderMaintenance MachineStatus = "Under Maintenance"
)

// Valid reports whether s is one of the known statuses.
func (s MachineStatus) Valid() bool {
	switch s {
	case StatusActive, StatusFault, StatusUnderMaintenance:
		return true
	}
	return false
}

// Machine represents an industrial asset and its descriptive record.
type Machine struct {
	ID                  string        `gorm:"primaryKey;size:64" json:"id"`
	Name                string        `gorm:"size:256;not null" json:"name"`
	Type                string        `gorm:"size:128;not null" json:"type"`
	SerialNumber        string        `gorm:"size:128;not null" json:"serial_number"`
	PurchaseDate        string        `json:"purchase_date"`
	PurchaseCost        *float64      `json:"purchase_cost"`
	WarrantyExpiry      string        `json:"warranty_expiry"`
	SupplierName        string        `json:"supplier_name"`
	SupplierContact     string        `json:"supplier_contact"`
	CompanyName         string        `json:"company_name"`
	CompanyAddress      string        `json:"company_address"`
	InstallationDate    string        `json:"installation_date"`
	Location            string        `json:"location"`
	MaintenanceSchedule string        `json:"maintenance_schedule"`
	ServiceHistory      string        `json:"service_history"`
	Status              MachineStatus `gorm:"size:32;not null;default:Active" json:"status"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// MachineSummary is the slice of a machine the broadcast loop works from.
type MachineSummary struct {
	ID     string
	Name   string
	Status MachineStatus
}
