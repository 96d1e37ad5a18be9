// Package api serves the machine record API, push subscriptions and the dashboard push channel.
package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"machine-monitor-backend/internal/store"
)

// ViewerCounter reports how many dashboards hold an open push channel.
type ViewerCounter interface {
	Len() int
}

// Handler serves the record and subscription endpoints. webpush is nil when
// push is disabled; viewers is nil when no push channel is mounted.
type Handler struct {
	store   store.Store
	webpush *webpush.Options
	viewers ViewerCounter
}

func NewHandler(s store.Store, webpushOptions *webpush.Options, viewers ViewerCounter) *Handler {
	return &Handler{store: s, webpush: webpushOptions, viewers: viewers}
}

func (h *Handler) viewerCount() int {
	if h.viewers == nil {
		return 0
	}
	return h.viewers.Len()
}
