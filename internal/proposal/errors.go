package proposal

import (
	"github.com/starford/jeebs/internal/apperr"
	"github.com/starford/jeebs/internal/models"
)

// Lifecycle rejection messages.
const (
	MsgAlreadyProcessed = "update already processed"
	MsgNotApplied       = "update is not in applied state"
	MsgNoBackup         = "no backup available for this update"
)

// TransitionError rejects a lifecycle action that is illegal in the
// proposal's current state. Nothing is mutated when it is returned.
type TransitionError struct {
	ID     string
	From   models.ProposalStatus
	Action string
	Msg    string
}

func (e *TransitionError) Error() string { return e.Msg }

func (e *TransitionError) Unwrap() error { return apperr.ErrInvalidTransition }
