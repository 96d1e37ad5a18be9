package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"machine-monitor-backend/internal/model"
	"machine-monitor-backend/internal/store"
)

type machineRequest struct {
	ID                  string              `json:"id"`
	Name                string              `json:"name" binding:"required"`
	Type                string              `json:"type" binding:"required"`
	SerialNumber        string              `json:"serial_number" binding:"required"`
	PurchaseDate        string              `json:"purchase_date"`
	PurchaseCost        *float64            `json:"purchase_cost"`
	WarrantyExpiry      string              `json:"warranty_expiry"`
	SupplierName        string              `json:"supplier_name"`
	SupplierContact     string              `json:"supplier_contact"`
	CompanyName         string              `json:"company_name"`
	CompanyAddress      string              `json:"company_address"`
	InstallationDate    string              `json:"installation_date"`
	Location            string              `json:"location"`
	MaintenanceSchedule string              `json:"maintenance_schedule"`
	ServiceHistory      string              `json:"service_history"`
	Status              model.MachineStatus `json:"status"`
}

func (r machineRequest) toModel() model.Machine {
	return model.Machine{
		ID:                  r.ID,
		Name:                r.Name,
		Type:                r.Type,
		SerialNumber:        r.SerialNumber,
		PurchaseDate:        r.PurchaseDate,
		PurchaseCost:        r.PurchaseCost,
		WarrantyExpiry:      r.WarrantyExpiry,
		SupplierName:        r.SupplierName,
		SupplierContact:     r.SupplierContact,
		CompanyName:         r.CompanyName,
		CompanyAddress:      r.CompanyAddress,
		InstallationDate:    r.InstallationDate,
		Location:            r.Location,
		MaintenanceSchedule: r.MaintenanceSchedule,
		ServiceHistory:      r.ServiceHistory,
		Status:              r.Status,
	}
}

func bindMachine(c *gin.Context) (model.Machine, bool) {
	var req machineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return model.Machine{}, false
	}
	if req.Status != "" && !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of Active, Fault, Under Maintenance"})
		return model.Machine{}, false
	}
	return req.toModel(), true
}

// ListMachines handles GET /api/machines.
func (h *Handler) ListMachines(c *gin.Context) {
	machines, err := h.store.ListMachines(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("list machines")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve machines"})
		return
	}
	c.JSON(http.StatusOK, machines)
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	machine, err := h.store.GetMachine(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("machine_id", c.Param("id")).Msg("get machine")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve machine"})
		return
	}
	c.JSON(http.StatusOK, machine)
}

// CreateMachine handles POST /api/machines. A missing id is generated.
func (h *Handler) CreateMachine(c *gin.Context) {
	machine, ok := bindMachine(c)
	if !ok {
		return
	}
	if machine.ID == "" {
		machine.ID = uuid.NewString()
	}

	if err := h.store.CreateMachine(c.Request.Context(), &machine); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("machine_id", machine.ID).Msg("machine added")
	c.JSON(http.StatusCreated, gin.H{"message": "Machine added", "id": machine.ID})
}

// UpdateMachine handles PUT /api/machines/:id as a full replacement. Any id in the body is ignored.
func (h *Handler) UpdateMachine(c *gin.Context) {
	machine, ok := bindMachine(c)
	if !ok {
		return
	}
	id := c.Param("id")
	machine.ID = ""

	err := h.store.UpdateMachine(c.Request.Context(), id, &machine)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Machine updated"})
}

// DeleteMachine handles DELETE /api/machines/:id. Fault history is kept.
func (h *Handler) DeleteMachine(c *gin.Context) {
	err := h.store.DeleteMachine(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("machine_id", c.Param("id")).Msg("delete machine")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete machine"})
		return
	}
	log.Info().Str("machine_id", c.Param("id")).Msg("machine deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Machine deleted"})
}
