package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/vmtorres/payables-api/internal/models"
)

// ClosingFSM wraps a day-closing record with its state machine.
// The sequential-closing and reverse-order-reopen rules live in the
// closing service; the FSM only guards the per-date transitions.
type ClosingFSM struct {
	closing *models.DayClosing
	fsm     *fsm.FSM
}

// NewClosingFSM creates a new day-closing state machine
func NewClosingFSM(closing *models.DayClosing) *ClosingFSM {
	cfsm := &ClosingFSM{
		closing: closing,
	}

	cfsm.fsm = fsm.NewFSM(
		closing.Status,
		fsm.Events{
			{Name: "close", Src: []string{models.ClosingStatusOpen}, Dst: models.ClosingStatusClosed},
			{Name: "reopen", Src: []string{models.ClosingStatusClosed}, Dst: models.ClosingStatusOpen},
		},
		fsm.Callbacks{},
	)

	return cfsm
}

// Close transitions the date to closed
func (c *ClosingFSM) Close(ctx context.Context) error {
	if !c.closing.MayClose() {
		return fmt.Errorf("date cannot be closed in current state: %s", c.closing.Status)
	}

	if err := c.fsm.Event(ctx, "close"); err != nil {
		return fmt.Errorf("failed to close date: %w", err)
	}

	c.closing.Status = c.fsm.Current()
	return nil
}

// Reopen transitions the date back to open
func (c *ClosingFSM) Reopen(ctx context.Context) error {
	if !c.closing.MayReopen() {
		return fmt.Errorf("date cannot be reopened in current state: %s", c.closing.Status)
	}

	if err := c.fsm.Event(ctx, "reopen"); err != nil {
		return fmt.Errorf("failed to reopen date: %w", err)
	}

	c.closing.Status = c.fsm.Current()
	return nil
}

// Current returns the current state
func (c *ClosingFSM) Current() string {
	return c.fsm.Current()
}
