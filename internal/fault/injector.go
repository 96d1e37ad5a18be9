// Package fault decides, once per tick, whether a simulated fault occurs and records it.
package fault

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"machine-monitor-backend/internal/model"
)

// DefaultProbability is the chance per tick that one fault is injected.
const DefaultProbability = 0.02

// Types is the fixed vocabulary of system-generated fault types.
var Types = []string{"Overheating", "High Vibration", "Thread Break", "Power Surge"}

// Description is the fault log text recorded for a system-generated fault.
func Description(faultType string) string {
	return "Automatic detection of " + faultType
}

// Source is the randomness the injector draws from. *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
	IntN(n int) int
}

// Recorder persists a fault and flips the machine to Fault as one step.
type Recorder interface {
	RecordFault(ctx context.Context, machineID, faultType, description string) (model.FaultLog, error)
}

// Injector fires at most once per call.
type Injector struct {
	rec       Recorder
	src       Source
	threshold float64
}

// NewInjector creates an injector that fires with the given probability per call.
func NewInjector(rec Recorder, src Source, probability float64) *Injector {
	return &Injector{
		rec:       rec,
		src:       src,
		threshold: 1 - probability,
	}
}

// Inject rolls once against the snapshot. It returns a nil alert when the roll does not
// exceed the threshold or the snapshot is empty. A storage failure is returned and no
// alert is produced.
func (i *Injector) Inject(ctx context.Context, snapshot []model.MachineSummary) (*model.FaultAlert, error) {
	if i.src.Float64() <= i.threshold {
		return nil, nil
	}
	if len(snapshot) == 0 {
		log.Debug().Msg("fault roll fired on an empty machine list; skipping")
		return nil, nil
	}

	target := snapshot[i.src.IntN(len(snapshot))]
	faultType := Types[i.src.IntN(len(Types))]

	if target.Status == model.StatusUnderMaintenance {
		log.Warn().Str("machine_id", target.ID).Msg("overwriting maintenance status with injected fault")
	}

	if _, err := i.rec.RecordFault(ctx, target.ID, faultType, Description(faultType)); err != nil {
		return nil, fmt.Errorf("inject %s on %s: %w", faultType, target.ID, err)
	}

	return &model.FaultAlert{
		MachineID:   target.ID,
		MachineName: target.Name,
		FaultType:   faultType,
	}, nil
}
