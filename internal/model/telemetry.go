package model

import "time"

// SensorReading is one synthetic sample for a machine. It is never persisted.
type SensorReading struct {
	MachineID   string    `json:"machineId"`
	Name        string    `json:"name"`
	Temperature float64   `json:"temperature"`
	Vibration   float64   `json:"vibration"`
	RPM         float64   `json:"rpm"`
	Power       float64   `json:"power"`
	Tension     float64   `json:"tension"`
	Timestamp   time.Time `json:"timestamp"`
}

// FaultAlert announces an injected fault to push-channel subscribers.
type FaultAlert struct {
	MachineID   string `json:"machineId"`
	MachineName string `json:"machineName"`
	FaultType   string `json:"faultType"`
}
