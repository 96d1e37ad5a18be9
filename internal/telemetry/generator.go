// Package telemetry produces synthetic sensor readings for machines.
package telemetry

import (
	"time"

	"machine-monitor-backend/internal/model"
)

// Source is the randomness the generator draws from. *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
}

// Range is a half-open interval [Min, Max).
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in [Min, Max).
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v < r.Max
}

func (r Range) draw(src Source) float64 {
	return r.Min + src.Float64()*(r.Max-r.Min)
}

// Profile is the set of ranges one regime draws from.
type Profile struct {
	Temperature Range
	Vibration   Range
	RPM         Range
	Power       Range
	Tension     Range
}

var (
	// NormalProfile applies to every status except Fault.
	NormalProfile = Profile{
		Temperature: Range{40, 55},
		Vibration:   Range{0.1, 0.3},
		RPM:         Range{1200, 1300},
		Power:       Range{1.2, 1.5},
		Tension:     Range{15, 20},
	}
	// FaultProfile applies to machines whose status is Fault.
	FaultProfile = Profile{
		Temperature: Range{85, 105},
		Vibration:   Range{0.8, 1.3},
		RPM:         Range{500, 700},
		Power:       Range{2.5, 4.0},
		Tension:     Range{2, 10},
	}
)

// ProfileFor selects the regime for a status.
func ProfileFor(status model.MachineStatus) Profile {
	if status == model.StatusFault {
		return FaultProfile
	}
	return NormalProfile
}

// Generator maps machine summaries to readings. It is not safe for concurrent use
// because the underlying Source usually is not.
type Generator struct {
	src Source
}

// NewGenerator creates a generator drawing from src.
func NewGenerator(src Source) *Generator {
	return &Generator{src: src}
}

// Generate draws one reading for m. Fields are drawn in declaration order.
func (g *Generator) Generate(m model.MachineSummary, now time.Time) model.SensorReading {
	p := ProfileFor(m.Status)
	return model.SensorReading{
		MachineID:   m.ID,
		Name:        m.Name,
		Temperature: p.Temperature.draw(g.src),
		Vibration:   p.Vibration.draw(g.src),
		RPM:         p.RPM.draw(g.src),
		Power:       p.Power.draw(g.src),
		Tension:     p.Tension.draw(g.src),
		Timestamp:   now,
	}
}

// GenerateAll returns one reading per machine, in snapshot order. The result is
// never nil so it encodes as a JSON array.
func (g *Generator) GenerateAll(machines []model.MachineSummary, now time.Time) []model.SensorReading {
	readings := make([]model.SensorReading, 0, len(machines))
	for _, m := range machines {
		readings = append(readings, g.Generate(m, now))
	}
	return readings
}
