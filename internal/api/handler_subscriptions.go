package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"machine-monitor-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint           string   `json:"endpoint" binding:"required"`
	P256DH             string   `json:"p256dh" binding:"required"`
	Auth               string   `json:"auth" binding:"required"`
	SubscribedMachines []string `json:"subscribed_machines"`
}

func machineIDs(machines []*model.Machine) []string {
	ids := make([]string, len(machines))
	for i, m := range machines {
		ids[i] = m.ID
	}
	return ids
}

// PutSubscription creates or replaces a push subscription and its machine filter.
// An empty filter follows every machine; unknown machine ids are dropped.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}

	var machines []*model.Machine
	err := h.store.DB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Omit("Machines").Create(&subscription).Error; err != nil {
			return err
		}

		if len(req.SubscribedMachines) > 0 {
			if err := tx.Where("id IN ?", req.SubscribedMachines).Order("id").Find(&machines).Error; err != nil {
				return err
			}
		}

		association := tx.Model(&subscription).Association("Machines")
		if len(machines) == 0 {
			return association.Clear()
		}
		return association.Replace(machines)
	})

	if err != nil {
		log.Error().Err(err).Msg("save push subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"subscribed_machines": machineIDs(machines)})
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes a subscription and its machine filter.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := model.PushSubscription{Endpoint: req.Endpoint}
	if err := h.store.DB().WithContext(c.Request.Context()).Select("Machines").Delete(&sub).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetSubscription returns the machine filter of the subscription named by ?endpoint=.
func (h *Handler) GetSubscription(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	var subscription model.PushSubscription
	err := h.store.DB().WithContext(c.Request.Context()).
		Preload("Machines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&subscription, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscribed_machines": machineIDs(subscription.Machines)})
}

// GetVAPIDPublicKey returns the application server key browsers subscribe with.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "web push is disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
