package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/vmtorres/payables-api/internal/models"
)

// ObligationFSM wraps an obligation with its state machine
type ObligationFSM struct {
	obligation *models.Obligation
	fsm        *fsm.FSM
}

// NewObligationFSM creates a new obligation state machine
func NewObligationFSM(obligation *models.Obligation) *ObligationFSM {
	ofsm := &ObligationFSM{
		obligation: obligation,
	}

	ofsm.fsm = fsm.NewFSM(
		obligation.Status,
		fsm.Events{
			// open → partially_paid (first partial payment or adjustment)
			{Name: "cover", Src: []string{models.ObligationStatusOpen}, Dst: models.ObligationStatusPartiallyPaid},

			// open/partially_paid → settled (outstanding reached zero)
			{Name: "settle", Src: []string{models.ObligationStatusOpen, models.ObligationStatusPartiallyPaid}, Dst: models.ObligationStatusSettled},

			// settled → partially_paid (payment reversal)
			{Name: "unsettle", Src: []string{models.ObligationStatusSettled}, Dst: models.ObligationStatusPartiallyPaid},

			// partially_paid → open (reversal removed all coverage)
			{Name: "clear", Src: []string{models.ObligationStatusPartiallyPaid}, Dst: models.ObligationStatusOpen},

			// open/partially_paid → cancelled
			{Name: "cancel", Src: []string{models.ObligationStatusOpen, models.ObligationStatusPartiallyPaid}, Dst: models.ObligationStatusCancelled},
		},
		fsm.Callbacks{},
	)

	return ofsm
}

// Transition moves the obligation to the status the projector derived,
// going through the allowed edges. A no-op when already there.
func (o *ObligationFSM) Transition(ctx context.Context, target string) error {
	if o.fsm.Current() == target {
		return nil
	}

	var event string
	switch target {
	case models.ObligationStatusPartiallyPaid:
		event = "cover"
		if o.fsm.Current() == models.ObligationStatusSettled {
			event = "unsettle"
		}
	case models.ObligationStatusSettled:
		event = "settle"
	case models.ObligationStatusOpen:
		// A full reversal of a settling payment passes through
		// partially_paid on the way back.
		if o.fsm.Current() == models.ObligationStatusSettled {
			if err := o.fsm.Event(ctx, "unsettle"); err != nil {
				return fmt.Errorf("obligation cannot move from %s to %s: %w", o.obligation.Status, target, err)
			}
		}
		event = "clear"
	case models.ObligationStatusCancelled:
		event = "cancel"
	default:
		return fmt.Errorf("unknown obligation status: %s", target)
	}

	if err := o.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("obligation cannot move from %s to %s: %w", o.obligation.Status, target, err)
	}

	o.obligation.Status = o.fsm.Current()
	return nil
}

// Cancel transitions the obligation to cancelled
func (o *ObligationFSM) Cancel(ctx context.Context) error {
	if !o.obligation.MayCancel() {
		return fmt.Errorf("obligation cannot be cancelled in current state: %s", o.obligation.Status)
	}

	if err := o.fsm.Event(ctx, "cancel"); err != nil {
		return fmt.Errorf("failed to cancel obligation: %w", err)
	}

	o.obligation.Status = o.fsm.Current()
	return nil
}

// Current returns the current state
func (o *ObligationFSM) Current() string {
	return o.fsm.Current()
}

// Can checks if a transition is possible
func (o *ObligationFSM) Can(event string) bool {
	return o.fsm.Can(event)
}
