// Package health holds the vehicle's reported health state and the policy
// deciding which operator commands it permits.
//
// The dashboard never predicts transitions. The held state is replaced
// wholesale by each health record from the vehicle, which is the authority.
package health

import (
	"github.com/saviobatista/groundstation/internal/types"
)

// capabilities maps each command to the states in which it is enabled
var capabilities = map[types.CommandKind][]types.HealthState{
	types.CommandArm:            {types.StateConnected, types.StateDisarmed},
	types.CommandDisarm:         {types.StateArmed, types.StateFlying, types.StateOffboard},
	types.CommandTakeoff:        {types.StateArmed},
	types.CommandLand:           {types.StateFlying, types.StateOffboard},
	types.CommandReturnToLaunch: {types.StateFlying, types.StateOffboard},
}

// Matrix reports, for every dispatchable command, whether it is enabled
type Matrix map[types.CommandKind]bool

// Permits reports whether the command is enabled in state
func Permits(state types.HealthState, cmd types.CommandKind) bool {
	for _, s := range capabilities[cmd] {
		if s == state {
			return true
		}
	}
	return false
}

// Capabilities returns the full command matrix for state
func Capabilities(state types.HealthState) Matrix {
	m := make(Matrix, len(types.CommandKinds))
	for _, cmd := range types.CommandKinds {
		m[cmd] = Permits(state, cmd)
	}
	return m
}

// Enabled returns the enabled commands for state in canonical order
func (m Matrix) Enabled() []types.CommandKind {
	var out []types.CommandKind
	for _, cmd := range types.CommandKinds {
		if m[cmd] {
			out = append(out, cmd)
		}
	}
	return out
}

// IsFault reports whether state is one of the error states
func IsFault(state types.HealthState) bool {
	switch state {
	case types.StateError, types.StateTimeout, types.StateArmError,
		types.StateTakeoffError, types.StateLandError, types.StateRTLError:
		return true
	}
	return false
}

// Machine holds the current health state. It starts in StateStarting and
// has no terminal state. Not safe for concurrent use.
type Machine struct {
	state types.HealthState
}

// NewMachine returns a machine in the starting state
func NewMachine() *Machine {
	return &Machine{state: types.StateStarting}
}

// State returns the held state
func (m *Machine) State() types.HealthState {
	return m.state
}

// Apply replaces the held state with the one carried by a health record and
// reports whether it changed.
func (m *Machine) Apply(h types.Health) (changed bool) {
	changed = m.state != h.State
	m.state = h.State
	return changed
}

// Capabilities returns the command matrix for the held state
func (m *Machine) Capabilities() Matrix {
	return Capabilities(m.state)
}
