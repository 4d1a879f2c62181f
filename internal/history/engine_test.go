package history

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/warden/internal/rules"
)

func namedRule(label string) *rules.Rule {
	return rules.NewRule(label, rules.ProtocolTCP)
}

func TestAddAndUndo(t *testing.T) {
	rs := rules.NewRuleset()
	e := NewEngine(0)

	ssh := namedRule("SSH")
	ssh.Ports = []rules.PortEntry{rules.SinglePort(22)}
	ssh.RebuildCaches()

	require.NoError(t, e.Execute(rs, Add(ssh)))
	assert.Len(t, rs.Rules, 1)

	_, err := e.Undo(rs)
	require.NoError(t, err)
	assert.Len(t, rs.Rules, 0)
	assert.True(t, e.CanRedo())
	assert.False(t, e.CanUndo())
}

func TestUndoRestoresExactState(t *testing.T) {
	rs := rules.NewRuleset()
	rs.Rules = append(rs.Rules, *namedRule("A"), *namedRule("B"), *namedRule("C"))

	before, err := json.Marshal(rs)
	require.NoError(t, err)

	e := NewEngine(0)

	require.NoError(t, e.Execute(rs, Add(namedRule("D"))))
	require.NoError(t, e.Execute(rs, Delete(0, &rs.Rules[0])))

	beforeEdit := rs.Rules[0].Clone() // B, now at index 0
	afterEdit := beforeEdit.Clone()
	afterEdit.SetLabel("B2")
	require.NoError(t, e.Execute(rs, Edit(beforeEdit, afterEdit)))

	require.NoError(t, e.Execute(rs, Toggle(&rs.Rules[2])))
	require.NoError(t, e.Execute(rs, Reorder(0, 2)))

	for e.CanUndo() {
		_, err := e.Undo(rs)
		require.NoError(t, err)
	}

	after, err := json.Marshal(rs)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRedoReplaysToSameState(t *testing.T) {
	rs := rules.NewRuleset()
	e := NewEngine(0)

	require.NoError(t, e.Execute(rs, Add(namedRule("A"))))
	require.NoError(t, e.Execute(rs, Add(namedRule("B"))))
	require.NoError(t, e.Execute(rs, Toggle(&rs.Rules[0])))

	want, err := json.Marshal(rs)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := e.Undo(rs)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := e.Redo(rs)
		require.NoError(t, err)
	}

	got, err := json.Marshal(rs)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestExecuteClearsRedo(t *testing.T) {
	rs := rules.NewRuleset()
	e := NewEngine(0)

	require.NoError(t, e.Execute(rs, Add(namedRule("A"))))
	_, err := e.Undo(rs)
	require.NoError(t, err)
	assert.True(t, e.CanRedo())

	require.NoError(t, e.Execute(rs, Add(namedRule("B"))))
	assert.False(t, e.CanRedo())
}

func TestHistoryBoundDropsOldest(t *testing.T) {
	rs := rules.NewRuleset()
	e := NewEngine(3)

	for _, l := range []string{"A", "B", "C", "D"} {
		require.NoError(t, e.Execute(rs, Add(namedRule(l))))
	}

	undone := 0
	for e.CanUndo() {
		_, err := e.Undo(rs)
		require.NoError(t, err)
		undone++
	}

	// Oldest entry fell off the stack: A survives every undo.
	assert.Equal(t, 3, undone)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, "A", rs.Rules[0].Label)
}

func TestDeleteUndoClampsIndex(t *testing.T) {
	rs := rules.NewRuleset()
	rs.Rules = append(rs.Rules, *namedRule("A"), *namedRule("B"), *namedRule("C"))
	e := NewEngine(0)

	// Delete C (index 2), then the rest; unwinding restores the
	// original order even though each reinsert targets a shorter
	// sequence than the one it was recorded against.
	require.NoError(t, e.Execute(rs, Delete(2, &rs.Rules[2])))
	require.NoError(t, e.Execute(rs, Delete(0, &rs.Rules[0])))
	require.NoError(t, e.Execute(rs, Delete(0, &rs.Rules[0])))
	require.Len(t, rs.Rules, 0)

	for e.CanUndo() {
		_, err := e.Undo(rs)
		require.NoError(t, err)
	}
	require.Len(t, rs.Rules, 3)
	assert.Equal(t, "A", rs.Rules[0].Label)
	assert.Equal(t, "B", rs.Rules[1].Label)
	assert.Equal(t, "C", rs.Rules[2].Label)
}

func TestDeleteUndoEndInsert(t *testing.T) {
	rs := rules.NewRuleset()
	c := namedRule("C")
	_ = NewEngine(0)

	// A delete recorded at index 2 undone against a shorter sequence.
	cmd := Delete(2, c)
	require.NoError(t, cmd.revert(rs))
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, "C", rs.Rules[0].Label)
}

func TestExecuteErrorLeavesStacksUntouched(t *testing.T) {
	rs := rules.NewRuleset()
	e := NewEngine(0)

	err := e.Execute(rs, Delete(5, namedRule("ghost")))
	assert.Error(t, err)
	assert.False(t, e.CanUndo())
	assert.False(t, e.CanRedo())
}

func TestReorder(t *testing.T) {
	rs := rules.NewRuleset()
	rs.Rules = append(rs.Rules, *namedRule("A"), *namedRule("B"), *namedRule("C"))
	e := NewEngine(0)

	require.NoError(t, e.Execute(rs, Reorder(0, 2)))
	assert.Equal(t, "B", rs.Rules[0].Label)
	assert.Equal(t, "A", rs.Rules[2].Label)

	_, err := e.Undo(rs)
	require.NoError(t, err)
	assert.Equal(t, "A", rs.Rules[0].Label)
	assert.Equal(t, "C", rs.Rules[2].Label)
}

func TestCommandDescriptions(t *testing.T) {
	assert.Equal(t, `add rule "SSH"`, Add(namedRule("SSH")).Description())
	assert.Equal(t, "move rule 1 to 3", Reorder(1, 3).Description())
}
