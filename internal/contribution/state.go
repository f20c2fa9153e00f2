package contribution

import "encoding/json"

// Phase names a progress state on the wire.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseForking        Phase = "forking"
	PhaseCreatingBranch Phase = "creating-branch"
	PhaseCommitting     Phase = "committing"
	PhaseCreatingPR     Phase = "creating-pr"
	PhaseSuccess        Phase = "success"
	PhaseSuccessOwner   Phase = "success-owner"
	PhaseError          Phase = "error"
)

// State is the progress of one pipeline run. The set of implementations is
// closed; use Switch to handle every variant.
type State interface {
	Phase() Phase
	Terminal() bool
	state()
}

type (
	Idle           struct{}
	Forking        struct{}
	CreatingBranch struct{}
	Committing     struct{}
	CreatingPR     struct{}

	Success struct {
		PRURL    string
		PRNumber int
		Branch   string
	}

	SuccessOwner struct {
		Branch string
	}

	Failed struct {
		Message string
		// Auth is set when the credential was rejected and the user must sign in again.
		Auth bool
	}
)

func (Idle) Phase() Phase           { return PhaseIdle }
func (Forking) Phase() Phase        { return PhaseForking }
func (CreatingBranch) Phase() Phase { return PhaseCreatingBranch }
func (Committing) Phase() Phase     { return PhaseCommitting }
func (CreatingPR) Phase() Phase     { return PhaseCreatingPR }
func (Success) Phase() Phase        { return PhaseSuccess }
func (SuccessOwner) Phase() Phase   { return PhaseSuccessOwner }
func (Failed) Phase() Phase         { return PhaseError }

func (Idle) Terminal() bool           { return false }
func (Forking) Terminal() bool        { return false }
func (CreatingBranch) Terminal() bool { return false }
func (Committing) Terminal() bool     { return false }
func (CreatingPR) Terminal() bool     { return false }
func (Success) Terminal() bool        { return true }
func (SuccessOwner) Terminal() bool   { return true }
func (Failed) Terminal() bool         { return true }

func (Idle) state()           {}
func (Forking) state()        {}
func (CreatingBranch) state() {}
func (Committing) state()     {}
func (CreatingPR) state()     {}
func (Success) state()        {}
func (SuccessOwner) state()   {}
func (Failed) state()         {}

// StateSwitch has one handler per variant. Switch panics on a nil handler for
// the variant it receives, so leave none unset.
type StateSwitch[T any] struct {
	Idle           func(Idle) T
	Forking        func(Forking) T
	CreatingBranch func(CreatingBranch) T
	Committing     func(Committing) T
	CreatingPR     func(CreatingPR) T
	Success        func(Success) T
	SuccessOwner   func(SuccessOwner) T
	Failed         func(Failed) T
}

// Switch dispatches s to the matching handler.
func Switch[T any](s State, h StateSwitch[T]) T {
	switch v := s.(type) {
	case Idle:
		return h.Idle(v)
	case Forking:
		return h.Forking(v)
	case CreatingBranch:
		return h.CreatingBranch(v)
	case Committing:
		return h.Committing(v)
	case CreatingPR:
		return h.CreatingPR(v)
	case Success:
		return h.Success(v)
	case SuccessOwner:
		return h.SuccessOwner(v)
	case Failed:
		return h.Failed(v)
	default:
		panic("contribution: unknown state type")
	}
}

// StateView is the wire form of a State.
type StateView struct {
	Phase    Phase  `json:"phase"`
	Terminal bool   `json:"terminal"`
	PRURL    string `json:"prUrl,omitempty"`
	PRNumber int    `json:"prNumber,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Message  string `json:"message,omitempty"`
	Auth     bool   `json:"auth,omitempty"`
}

// View flattens s for serialization.
func View(s State) StateView {
	v := StateView{Phase: s.Phase(), Terminal: s.Terminal()}
	return Switch(s, StateSwitch[StateView]{
		Idle:           func(Idle) StateView { return v },
		Forking:        func(Forking) StateView { return v },
		CreatingBranch: func(CreatingBranch) StateView { return v },
		Committing:     func(Committing) StateView { return v },
		CreatingPR:     func(CreatingPR) StateView { return v },
		Success: func(x Success) StateView {
			v.PRURL, v.PRNumber, v.Branch = x.PRURL, x.PRNumber, x.Branch
			return v
		},
		SuccessOwner: func(x SuccessOwner) StateView {
			v.Branch = x.Branch
			return v
		},
		Failed: func(x Failed) StateView {
			v.Message, v.Auth = x.Message, x.Auth
			return v
		},
	})
}

// MarshalStateJSON encodes s as its StateView.
func MarshalStateJSON(s State) ([]byte, error) {
	return json.Marshal(View(s))
}
