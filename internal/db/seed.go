package db

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"machine-monitor-backend/internal/model"
)

func cost(v float64) *float64 { return &v }

// ReferenceMachines is the fleet a fresh installation starts with.
var ReferenceMachines = []model.Machine{
	{ID: "M001", Name: "Braider Alpha", Type: "Braiding Machine", SerialNumber: "SN-9921-A", PurchaseDate: "2023-05-12", PurchaseCost: cost(45000), Status: model.StatusActive, Location: "Floor A - Section 1"},
	{ID: "M002", Name: "Winder Pro", Type: "Winding Machine", SerialNumber: "SN-8812-B", PurchaseDate: "2023-08-20", PurchaseCost: cost(12000), Status: model.StatusActive, Location: "Floor B - Section 2"},
	{ID: "M003", Name: "Twister X", Type: "Twisting Machine", SerialNumber: "SN-7734-C", PurchaseDate: "2024-01-15", PurchaseCost: cost(28000), Status: model.StatusFault, Location: "Floor A - Section 3"},
	{ID: "M004", Name: "Spooler Max", Type: "Spooling Machine", SerialNumber: "SN-6645-D", PurchaseDate: "2023-11-05", PurchaseCost: cost(8500), Status: model.StatusActive, Location: "Floor B - Section 1"},
	{ID: "M005", Name: "Cutter X1", Type: "Cutting Machine", SerialNumber: "SN-5556-E", PurchaseDate: "2024-02-10", PurchaseCost: cost(15000), Status: model.StatusActive, Location: "Floor C - Section 1"},
	{ID: "M006", Name: "Inspector 5000", Type: "Quality Inspection Unit", SerialNumber: "SN-4467-F", PurchaseDate: "2024-03-01", PurchaseCost: cost(35000), Status: model.StatusActive, Location: "Floor C - Section 2"},
	{ID: "M007", Name: "Braider Beta", Type: "Braiding Machine", SerialNumber: "SN-9922-G", PurchaseDate: "2023-06-15", PurchaseCost: cost(46000), Status: model.StatusActive, Location: "Floor A - Section 2"},
	{ID: "M008", Name: "Winder Lite", Type: "Winding Machine", SerialNumber: "SN-8813-H", PurchaseDate: "2023-09-10", PurchaseCost: cost(11000), Status: model.StatusUnderMaintenance, Location: "Floor B - Section 3"},
	{ID: "M009", Name: "Twister Pro", Type: "Twisting Machine", SerialNumber: "SN-7735-I", PurchaseDate: "2024-01-20", PurchaseCost: cost(29000), Status: model.StatusActive, Location: "Floor A - Section 4"},
	{ID: "M010", Name: "Spooler Mini", Type: "Spooling Machine", SerialNumber: "SN-6646-J", PurchaseDate: "2023-12-01", PurchaseCost: cost(7500), Status: model.StatusActive, Location: "Floor B - Section 4"},
	{ID: "M011", Name: "Cutter Pro", Type: "Cutting Machine", SerialNumber: "SN-5557-K", PurchaseDate: "2024-02-15", PurchaseCost: cost(16000), Status: model.StatusActive, Location: "Floor C - Section 3"},
	{ID: "M012", Name: "Inspector Pro", Type: "Quality Inspection Unit", SerialNumber: "SN-4468-L", PurchaseDate: "2024-03-05", PurchaseCost: cost(36000), Status: model.StatusActive, Location: "Floor C - Section 4"},
}

// Seed inserts the reference machines, leaving existing rows untouched.
func Seed(ctx context.Context, database *gorm.DB) error {
	machines := make([]model.Machine, len(ReferenceMachines))
	copy(machines, ReferenceMachines)
	return database.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&machines).Error
}
