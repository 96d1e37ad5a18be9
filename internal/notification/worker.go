// Package notification delivers fault alerts as browser web push messages.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"machine-monitor-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the JSON body delivered to the browser's service worker.
type Message struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	MachineID string `json:"machineId"`
	FaultType string `json:"faultType"`
}

// NewMessage renders the push message for an alert.
func NewMessage(alert model.FaultAlert) Message {
	return Message{
		Title:     "Machine fault detected",
		Body:      fmt.Sprintf("%s (%s): %s", alert.MachineName, alert.MachineID, alert.FaultType),
		MachineID: alert.MachineID,
		FaultType: alert.FaultType,
	}
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan model.FaultAlert
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool with a job queue of queueSize.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.FaultAlert, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("push worker started")
	for {
		select {
		case alert := <-wp.jobs:
			wp.sendNotificationsForAlert(ctx, alert)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("push worker shutting down")
			return
		}
	}
}

// Dispatch queues an alert without blocking. It reports false when the queue is full
// and the alert was dropped.
func (wp *WorkerPool) Dispatch(alert model.FaultAlert) bool {
	select {
	case wp.jobs <- alert:
		return true
	default:
		log.Warn().Str("machine_id", alert.MachineID).Str("fault_type", alert.FaultType).Msg("push queue full; dropping alert")
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan model.FaultAlert {
	return wp.jobs
}

// subscriptionsFor returns subscriptions that follow machineID or follow every machine.
func (wp *WorkerPool) subscriptionsFor(ctx context.Context, machineID string) ([]model.PushSubscription, error) {
	following := wp.db.Table("subscription_machine_mapping").
		Select("push_subscription_endpoint").
		Where("machine_id = ?", machineID)
	anyMapping := wp.db.Table("subscription_machine_mapping AS smm").
		Select("1").
		Where("smm.push_subscription_endpoint = push_subscriptions.endpoint")

	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Where("push_subscriptions.endpoint IN (?)", following).
		Or("NOT EXISTS (?)", anyMapping).
		Find(&subscriptions).Error
	return subscriptions, err
}

func (wp *WorkerPool) sendNotificationsForAlert(ctx context.Context, alert model.FaultAlert) {
	subscriptions, err := wp.subscriptionsFor(ctx, alert.MachineID)
	if err != nil {
		log.Error().Err(err).Str("machine_id", alert.MachineID).Msg("fetch push subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(NewMessage(alert))
	if err != nil {
		log.Error().Err(err).Msg("encode push message")
		return
	}

	log.Info().Int("subscriptions", len(subscriptions)).Str("machine_id", alert.MachineID).Msg("sending fault push notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("send push notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Info().Str("endpoint", sub.Endpoint).Msg("push subscription expired; deleting")
		if err := wp.db.WithContext(ctx).Select("Machines").Delete(&sub).Error; err != nil {
			log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("delete expired subscription")
		}
	}
}
