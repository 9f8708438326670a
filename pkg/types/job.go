package types

import "time"

// Phase is a UWS job lifecycle phase. The integer values order the
// forward chain; ABORTED and ERROR are side exits reachable from any
// non-terminal phase.
type Phase int

const (
	PhasePending Phase = iota
	PhaseQueued
	PhaseExecuting
	PhaseCompleted
	PhaseError
	PhaseAborted
)

var phaseNames = map[Phase]string{
	PhasePending:   "PENDING",
	PhaseQueued:    "QUEUED",
	PhaseExecuting: "EXECUTING",
	PhaseCompleted: "COMPLETED",
	PhaseError:     "ERROR",
	PhaseAborted:   "ABORTED",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParsePhase maps a phase name to its Phase.
func ParsePhase(s string) (Phase, bool) {
	for p, name := range phaseNames {
		if name == s {
			return p, true
		}
	}
	return 0, false
}

// Terminal reports whether the phase is final. Terminal phases are
// immutable.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError || p == PhaseAborted
}

// Executing reports whether results produced by the job are readable,
// which is the case from EXECUTING onwards.
func (p Phase) Executing() bool { return p >= PhaseExecuting }

// CanTransition reports whether a phase change from p to next is legal:
// forward along PENDING < QUEUED < EXECUTING < COMPLETED, or to ABORTED
// or ERROR from any non-terminal phase.
func (p Phase) CanTransition(next Phase) bool {
	if p.Terminal() {
		return false
	}
	if next == PhaseAborted || next == PhaseError {
		return true
	}
	return next > p && next <= PhaseCompleted
}

// Job is the durable record of an in-flight transfer. The transfer
// request and the negotiated result are stored as serialized XML so that
// the record round-trips byte-identically.
type Job struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Phase       Phase     `json:"phase"`
	Target      string    `json:"target"`
	TransferXML string    `json:"transfer_xml"`
	ResultsXML  string    `json:"results_xml,omitempty"`
	Created     time.Time `json:"created"`
	Started     time.Time `json:"started,omitempty"`
	Ended       time.Time `json:"ended,omitempty"`
	Error       string    `json:"error,omitempty"`
}
