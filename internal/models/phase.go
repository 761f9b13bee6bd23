package models

// Phase is the session's current iceberg layer.
type Phase string

// Phases in depth order.
const (
	PhaseInitial   Phase = "initial"   // surface behavior → feeling
	PhaseExploring Phase = "exploring" // feeling → belief
	PhaseChildhood Phase = "childhood" // belief → longing
	PhaseHealing   Phase = "healing"   // longing → self
)

// Phases lists every phase from shallowest to deepest.
var Phases = []Phase{PhaseInitial, PhaseExploring, PhaseChildhood, PhaseHealing}

var phaseDisplayNames = map[Phase]string{
	PhaseInitial:   "表層探索 (行為→感受)",
	PhaseExploring: "感受深化 (感受→觀點)",
	PhaseChildhood: "童年回溯 (觀點→渴望)",
	PhaseHealing:   "療癒整合 (渴望→自我)",
}

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	_, ok := phaseDisplayNames[p]
	return ok
}

// Rank returns the depth of the phase (0 for initial, 3 for healing).
// Unknown phases rank as initial.
func (p Phase) Rank() int {
	for i, ph := range Phases {
		if ph == p {
			return i
		}
	}
	return 0
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseHealing
}

// Normalize maps unknown or empty phases to PhaseInitial.
func (p Phase) Normalize() Phase {
	if p.Valid() {
		return p
	}
	return PhaseInitial
}

// DisplayName returns the human readable iceberg-layer label.
func (p Phase) DisplayName() string {
	if name, ok := phaseDisplayNames[p]; ok {
		return name
	}
	return "未知階段"
}

// ParsePhase converts a string into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", ErrInvalidPhase
	}
	return p, nil
}
