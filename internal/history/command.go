// Package history implements the undo/redo engine for rule edits.
// Each command carries the minimum state needed to reverse itself, so
// the whole history is a plain value that can be serialized or
// inspected.
package history

import (
	"fmt"

	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/rules"
)

// Op tags the command variant.
type Op string

const (
	OpAdd     Op = "add"
	OpDelete  Op = "delete"
	OpEdit    Op = "edit"
	OpToggle  Op = "toggle"
	OpReorder Op = "reorder"
)

// Command is one reversible edit of a ruleset.
type Command struct {
	Op Op `json:"op"`

	// Rule is the added rule (Add), the removed rule (Delete), or the
	// post-edit rule (Edit).
	Rule *rules.Rule `json:"rule,omitempty"`
	// Before is the pre-edit rule (Edit only).
	Before *rules.Rule `json:"before,omitempty"`
	// RuleID identifies the target rule (Toggle).
	RuleID string `json:"rule_id,omitempty"`
	// WasEnabled is the enabled flag before a Toggle.
	WasEnabled bool `json:"was_enabled,omitempty"`
	// Index is the removal index (Delete) or the old position (Reorder).
	Index int `json:"index,omitempty"`
	// NewIndex is the new position (Reorder).
	NewIndex int `json:"new_index,omitempty"`
}

// Add appends the rule at the end of the ruleset.
func Add(r *rules.Rule) Command {
	return Command{Op: OpAdd, Rule: r.Clone()}
}

// Delete removes the rule at index, remembering its value for undo.
func Delete(index int, r *rules.Rule) Command {
	return Command{Op: OpDelete, Index: index, Rule: r.Clone()}
}

// Edit replaces the rule sharing after's identity with after.
func Edit(before, after *rules.Rule) Command {
	return Command{Op: OpEdit, Before: before.Clone(), Rule: after.Clone()}
}

// Toggle flips the enabled flag of the identified rule.
func Toggle(r *rules.Rule) Command {
	return Command{Op: OpToggle, RuleID: r.ID, WasEnabled: r.Enabled}
}

// Reorder moves the rule at oldIndex to newIndex.
func Reorder(oldIndex, newIndex int) Command {
	return Command{Op: OpReorder, Index: oldIndex, NewIndex: newIndex}
}

// Description renders the command for audit details and menu labels.
func (c Command) Description() string {
	switch c.Op {
	case OpAdd:
		return fmt.Sprintf("add rule %q", c.Rule.Label)
	case OpDelete:
		return fmt.Sprintf("delete rule %q", c.Rule.Label)
	case OpEdit:
		return fmt.Sprintf("edit rule %q", c.Rule.Label)
	case OpToggle:
		return "toggle rule"
	case OpReorder:
		return fmt.Sprintf("move rule %d to %d", c.Index, c.NewIndex)
	}
	return string(c.Op)
}

// apply performs the forward effect on rs.
func (c Command) apply(rs *rules.FirewallRuleset) error {
	switch c.Op {
	case OpAdd:
		rs.Rules = append(rs.Rules, *c.Rule.Clone())
		return nil

	case OpDelete:
		if c.Index < 0 || c.Index >= len(rs.Rules) {
			return errors.Errorf(errors.KindConflict, "delete index %d out of range (%d rules)", c.Index, len(rs.Rules))
		}
		rs.Rules = append(rs.Rules[:c.Index], rs.Rules[c.Index+1:]...)
		return nil

	case OpEdit:
		i := rs.FindByID(c.Rule.ID)
		if i < 0 {
			return errors.Errorf(errors.KindNotFound, "edit target %s not found", c.Rule.ID)
		}
		rs.Rules[i] = *c.Rule.Clone()
		return nil

	case OpToggle:
		i := rs.FindByID(c.RuleID)
		if i < 0 {
			return errors.Errorf(errors.KindNotFound, "toggle target %s not found", c.RuleID)
		}
		rs.Rules[i].Enabled = !c.WasEnabled
		return nil

	case OpReorder:
		return move(rs, c.Index, c.NewIndex)
	}
	return errors.Errorf(errors.KindInternal, "unknown command op %q", c.Op)
}

// revert undoes the forward effect on rs.
func (c Command) revert(rs *rules.FirewallRuleset) error {
	switch c.Op {
	case OpAdd:
		i := rs.FindByID(c.Rule.ID)
		if i < 0 {
			return errors.Errorf(errors.KindNotFound, "added rule %s not found for undo", c.Rule.ID)
		}
		rs.Rules = append(rs.Rules[:i], rs.Rules[i+1:]...)
		return nil

	case OpDelete:
		// The sequence may have shrunk since the delete; clamp to an
		// end-insert rather than failing.
		at := c.Index
		if at > len(rs.Rules) {
			at = len(rs.Rules)
		}
		rs.Rules = append(rs.Rules, rules.Rule{})
		copy(rs.Rules[at+1:], rs.Rules[at:])
		rs.Rules[at] = *c.Rule.Clone()
		return nil

	case OpEdit:
		i := rs.FindByID(c.Before.ID)
		if i < 0 {
			return errors.Errorf(errors.KindNotFound, "edit target %s not found for undo", c.Before.ID)
		}
		rs.Rules[i] = *c.Before.Clone()
		return nil

	case OpToggle:
		i := rs.FindByID(c.RuleID)
		if i < 0 {
			return errors.Errorf(errors.KindNotFound, "toggle target %s not found for undo", c.RuleID)
		}
		rs.Rules[i].Enabled = c.WasEnabled
		return nil

	case OpReorder:
		return move(rs, c.NewIndex, c.Index)
	}
	return errors.Errorf(errors.KindInternal, "unknown command op %q", c.Op)
}

func move(rs *rules.FirewallRuleset, from, to int) error {
	n := len(rs.Rules)
	if from < 0 || from >= n || to < 0 || to >= n {
		return errors.Errorf(errors.KindConflict, "move %d to %d out of range (%d rules)", from, to, n)
	}
	r := rs.Rules[from]
	rest := append(rs.Rules[:from], rs.Rules[from+1:]...)
	rs.Rules = append(rest, rules.Rule{})
	copy(rs.Rules[to+1:], rs.Rules[to:])
	rs.Rules[to] = r
	return nil
}
