package history

import (
	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/rules"
)

// DefaultLimit bounds the undo stack. Pushing past the bound drops the
// oldest entry permanently.
const DefaultLimit = 20

// Engine holds the undo and redo stacks for one ruleset.
type Engine struct {
	limit int
	undo  []Command
	redo  []Command
}

// NewEngine returns an engine bounded to limit entries; limit <= 0
// selects DefaultLimit.
func NewEngine(limit int) *Engine {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Engine{limit: limit}
}

// Execute applies cmd to rs, pushes it on the undo stack, and clears
// the redo stack. On error the ruleset is unchanged and the stacks are
// untouched.
func (e *Engine) Execute(rs *rules.FirewallRuleset, cmd Command) error {
	if err := cmd.apply(rs); err != nil {
		return err
	}
	e.undo = append(e.undo, cmd)
	if len(e.undo) > e.limit {
		e.undo = e.undo[1:]
	}
	e.redo = e.redo[:0]
	return nil
}

// Undo reverses the most recent command and moves it to the redo
// stack. Returns the reversed command for audit reporting.
func (e *Engine) Undo(rs *rules.FirewallRuleset) (Command, error) {
	if len(e.undo) == 0 {
		return Command{}, errors.New(errors.KindConflict, "nothing to undo")
	}
	cmd := e.undo[len(e.undo)-1]
	if err := cmd.revert(rs); err != nil {
		return Command{}, err
	}
	e.undo = e.undo[:len(e.undo)-1]
	e.redo = append(e.redo, cmd)
	return cmd, nil
}

// Redo re-applies the most recently undone command.
func (e *Engine) Redo(rs *rules.FirewallRuleset) (Command, error) {
	if len(e.redo) == 0 {
		return Command{}, errors.New(errors.KindConflict, "nothing to redo")
	}
	cmd := e.redo[len(e.redo)-1]
	if err := cmd.apply(rs); err != nil {
		return Command{}, err
	}
	e.redo = e.redo[:len(e.redo)-1]
	e.undo = append(e.undo, cmd)
	return cmd, nil
}

// CanUndo reports whether the undo stack is non-empty.
func (e *Engine) CanUndo() bool { return len(e.undo) > 0 }

// CanRedo reports whether the redo stack is non-empty.
func (e *Engine) CanRedo() bool { return len(e.redo) > 0 }

// Clear empties both stacks, e.g. after switching profiles.
func (e *Engine) Clear() {
	e.undo = e.undo[:0]
	e.redo = e.redo[:0]
}
