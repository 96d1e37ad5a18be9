// Package event defines the envelopes pushed to dashboard viewers.
package event

import (
	"encoding/json"
	"time"

	"machine-monitor-backend/internal/model"
)

// Type discriminates the push-channel envelope.
type Type string

const (
	SensorUpdate Type = "SENSOR_UPDATE"
	FaultAlert   Type = "FAULT_ALERT"
)

// Envelope is the JSON object written to every subscriber.
type Envelope struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// FaultDetected is the record published on the outbound event bus.
type FaultDetected struct {
	MachineID   string    `json:"machine_id"`
	MachineName string    `json:"machine_name"`
	FaultType   string    `json:"fault_type"`
	DetectedAt  time.Time `json:"detected_at"`
}

// Encode marshals an envelope of the given type.
func Encode(t Type, data any) ([]byte, error) {
	return json.Marshal(Envelope{Type: t, Data: data})
}

// EncodeSensorUpdate encodes the per-tick reading batch. A nil batch is sent as an empty array.
func EncodeSensorUpdate(readings []model.SensorReading) ([]byte, error) {
	if readings == nil {
		readings = []model.SensorReading{}
	}
	return Encode(SensorUpdate, readings)
}

// EncodeFaultAlert encodes a single alert.
func EncodeFaultAlert(alert model.FaultAlert) ([]byte, error) {
	return Encode(FaultAlert, alert)
}
