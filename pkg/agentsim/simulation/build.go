package simulation

import (
	"fmt"
	"time"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/recfile"
)

// BuildStateMachines decodes configured state machines into the runtime
// models.StateMachine values AddStateMachine expects, resolving each
// transition's "oid -> type-code:value" overlay map via the same parser the
// record-file loader uses for static values.
func BuildStateMachines(cfgs []models.StateMachineConfig) ([]*models.StateMachine, error) {
	machines := make([]*models.StateMachine, 0, len(cfgs))
	for _, c := range cfgs {
		initial := models.StateBooting
		if len(c.States) > 0 {
			initial = models.DeviceState(c.States[0])
		}

		transitions := make([]models.Transition, 0, len(c.Transitions))
		for _, tc := range c.Transitions {
			overlays := make(map[string]models.Record, len(tc.Overlays))
			for oidStr, typeValue := range tc.Overlays {
				oid, err := models.ParseOID(oidStr)
				if err != nil {
					return nil, fmt.Errorf("state machine %s: overlay oid %q: %w", c.ID, oidStr, err)
				}
				asnType, value, err := recfile.ParseTypeValue(typeValue)
				if err != nil {
					return nil, fmt.Errorf("state machine %s: overlay %s: %w", c.ID, oidStr, err)
				}
				overlays[oidStr] = models.Record{OID: oid, Type: asnType, Value: value}
			}
			transitions = append(transitions, models.Transition{
				FromState: models.DeviceState(tc.From),
				ToState:   models.DeviceState(tc.To),
				Delay:     time.Duration(tc.DelayMS) * time.Millisecond,
				Overlays:  overlays,
			})
		}

		machines = append(machines, &models.StateMachine{
			DeviceID:    c.ID,
			ContextRef:  c.ContextRef,
			State:       initial,
			Transitions: transitions,
		})
	}
	return machines, nil
}
