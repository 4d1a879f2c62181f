// Package applyctl drives the apply/confirm/revert state machine: verify
// the wire document, snapshot the kernel, apply, then hold the change
// behind a dead-man timer that reverts unless the user confirms in time.
package applyctl

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"grimm.is/warden/internal/audit"
	"grimm.is/warden/internal/clock"
	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/logging"
	"grimm.is/warden/internal/nftexec"
	"grimm.is/warden/internal/nftgen"
	"grimm.is/warden/internal/rules"
)

// State is the controller's current phase.
type State string

const (
	StateIdle              State = "idle"
	StateVerifying         State = "verifying"
	StateAwaitingElevation State = "awaiting-elevation"
	StateApplying          State = "applying"
	StateAwaitingConfirm   State = "awaiting-confirm"
	StateReverting         State = "reverting"
	StateFallback          State = "fallback"
)

// DefaultConfirmWindow is the dead-man interval before an unconfirmed
// apply reverts itself.
const DefaultConfirmWindow = 15 * time.Second

// Controller owns one apply operation at a time. All transitions happen
// under a single mutex; the subprocess calls themselves run outside it.
type Controller struct {
	mu sync.Mutex

	state    State
	snapshot []byte
	gen      uint64 // increments per apply; stale timers check it

	// applyID tags every audit event of one apply cycle so log readers
	// can correlate verify/apply/confirm/revert lines.
	applyID string

	timerCancel chan struct{}

	// emergency is set once the built-in fallback ruleset is installed
	// and cleared by the next successful apply.
	emergency bool

	runner        nftexec.Runner
	auditLog      *audit.Log
	clk           clock.Clock
	confirmWindow time.Duration
	log           *logging.Logger
}

// New builds a controller. A zero confirmWindow means DefaultConfirmWindow.
func New(runner nftexec.Runner, auditLog *audit.Log, clk clock.Clock, confirmWindow time.Duration) *Controller {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	if confirmWindow <= 0 {
		confirmWindow = DefaultConfirmWindow
	}
	return &Controller{
		state:         StateIdle,
		runner:        runner,
		auditLog:      auditLog,
		clk:           clk,
		confirmWindow: confirmWindow,
		log:           logging.Default().WithComponent("applyctl"),
	}
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CanEdit reports whether rule edits are allowed right now. Edits are
// rejected while an apply operation is in flight.
func (c *Controller) CanEdit() bool {
	return c.State() == StateIdle
}

// EmergencyActive reports whether the built-in fallback ruleset is in
// effect; the UI shows a persistent banner while it is.
func (c *Controller) EmergencyActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emergency
}

func (c *Controller) record(t audit.EventType, success bool, details map[string]any, err error) {
	if c.auditLog != nil {
		c.auditLog.Record(audit.NewEvent(t, success, details, err))
	}
}

// Apply runs the full pipeline for the given ruleset. It returns an error
// when the ruleset did not end up active; the kernel is left in its prior
// state (or the emergency set, which the error chain then says).
func (c *Controller) Apply(ctx context.Context, rs *rules.FirewallRuleset) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return errors.Errorf(errors.KindConflict, "apply already in flight (state %s)", c.state)
	}
	c.state = StateVerifying
	c.gen++
	gen := c.gen
	c.applyID = uuid.NewString()
	applyID := c.applyID
	c.mu.Unlock()

	return c.runApply(ctx, rs, gen, applyID)
}

// tagged returns details with the apply correlation ID attached.
func tagged(applyID string, details map[string]any) map[string]any {
	if applyID == "" {
		return details
	}
	if details == nil {
		details = map[string]any{}
	}
	details["apply_id"] = applyID
	return details
}

// runApply performs the verify/snapshot/apply sequence. The mutex is only
// taken around transitions, never across a subprocess call.
func (c *Controller) runApply(ctx context.Context, rs *rules.FirewallRuleset, gen uint64, applyID string) error {
	enabled := len(rs.EnabledRules())
	total := len(rs.Rules)

	wire, err := nftgen.EncodeWire(rs)
	if err != nil {
		c.record(audit.EventVerifyRules, false, tagged(applyID, map[string]any{"rule_count": total}), err)
		c.toIdle()
		return err
	}

	// Verifying: parse-only check, no elevation.
	if err := c.runner.Check(ctx, wire); err != nil {
		c.record(audit.EventVerifyRules, false,
			tagged(applyID, map[string]any{"rule_count": total, "messages": nftexec.Messages(err)}), err)
		c.toIdle()
		return err
	}
	c.record(audit.EventVerifyRules, true, tagged(applyID, map[string]any{"rule_count": total}), nil)

	// AwaitingElevation: the snapshot is the first privileged call, so
	// the authentication prompt happens here.
	c.setState(StateAwaitingElevation)
	snapshot, err := c.runner.Snapshot(ctx)
	if err != nil {
		switch {
		case nftexec.ElevationCancelled(err):
			c.record(audit.EventElevationCancelled, false, tagged(applyID, nil), err)
		case nftexec.ElevationFailed(err):
			c.record(audit.EventElevationFailed, false, tagged(applyID, nil), err)
		default:
			c.record(audit.EventSaveSnapshot, false, tagged(applyID, nil), err)
		}
		c.toIdle()
		return err
	}

	if path, err := nftexec.SaveSnapshot(snapshot); err != nil {
		// Keep going: the in-memory snapshot still covers the revert.
		c.log.Warn("failed to persist snapshot", "error", err)
		c.record(audit.EventSaveSnapshot, false, tagged(applyID, nil), err)
	} else {
		c.record(audit.EventSaveSnapshot, true, tagged(applyID, map[string]any{"path": path}), nil)
	}

	c.mu.Lock()
	c.state = StateApplying
	c.snapshot = snapshot
	c.mu.Unlock()

	if err := c.runner.Apply(ctx, wire); err != nil {
		c.record(audit.EventApplyRules, false,
			tagged(applyID, map[string]any{"rule_count": total, "enabled_count": enabled}), err)
		// Apply failed: put the prior state back, escalating to the
		// emergency set if even that fails.
		if rerr := c.revertChain(ctx, snapshot, applyID); rerr != nil {
			return errors.Wrapf(err, errors.KindSubprocess,
				"apply failed and revert failed (%v); emergency ruleset active", rerr)
		}
		return err
	}

	c.record(audit.EventApplyRules, true,
		tagged(applyID, map[string]any{"rule_count": total, "enabled_count": enabled}), nil)

	c.mu.Lock()
	c.state = StateAwaitingConfirm
	c.emergency = false
	cancel := make(chan struct{})
	c.timerCancel = cancel
	c.mu.Unlock()

	// Arm the deadline before returning so the window starts at apply
	// time, not whenever the goroutine gets scheduled.
	go c.deadManTimer(gen, c.clk.After(c.confirmWindow), cancel)
	return nil
}

// deadManTimer reverts the apply if no confirm arrives inside the window.
// Wall-clock: a suspended host that resumes past the deadline reverts.
func (c *Controller) deadManTimer(gen uint64, deadline <-chan time.Time, cancel <-chan struct{}) {
	select {
	case <-deadline:
	case <-cancel:
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateAwaitingConfirm {
		c.mu.Unlock()
		return
	}
	snapshot := c.snapshot
	applyID := c.applyID
	c.mu.Unlock()

	c.record(audit.EventAutoRevertTimedOut, true,
		tagged(applyID, map[string]any{"timeout_secs": int(c.confirmWindow.Seconds())}), nil)
	if err := c.revertChain(context.Background(), snapshot, applyID); err != nil {
		c.log.Error("auto-revert failed", "error", err)
	}
}

// Confirm accepts the applied ruleset: the timer is cancelled and the
// snapshot discarded.
func (c *Controller) Confirm() error {
	c.mu.Lock()
	if c.state != StateAwaitingConfirm {
		c.mu.Unlock()
		return errors.Errorf(errors.KindConflict, "nothing to confirm (state %s)", c.state)
	}
	close(c.timerCancel)
	c.timerCancel = nil
	c.snapshot = nil
	c.state = StateIdle
	applyID := c.applyID
	c.mu.Unlock()

	c.record(audit.EventAutoRevertConfirmed, true,
		tagged(applyID, map[string]any{"timeout_secs": int(c.confirmWindow.Seconds())}), nil)
	return nil
}

// Revert restores the pre-apply snapshot on user request. Outside an apply
// cycle it falls back to the newest on-disk snapshot.
func (c *Controller) Revert(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateReverting || c.state == StateFallback {
		c.mu.Unlock()
		return errors.Errorf(errors.KindConflict, "revert already in progress")
	}
	if c.timerCancel != nil {
		close(c.timerCancel)
		c.timerCancel = nil
	}
	snapshot := c.snapshot
	applyID := c.applyID
	c.gen++ // invalidate any timer that already fired but not yet run
	c.mu.Unlock()

	if snapshot != nil {
		return c.revertChain(ctx, snapshot, applyID)
	}

	// No apply in flight: restore the most recent persisted snapshot.
	c.setState(StateReverting)
	err := nftexec.RestoreNewest(ctx, c.runner)
	c.record(audit.EventRestoreSnapshot, err == nil, nil, err)
	if err != nil {
		return c.enterFallback(ctx, err)
	}
	c.toIdle()
	return nil
}

// revertChain restores the given snapshot, escalating to the emergency
// fallback when the restore itself fails. nil return means the prior state
// is back; non-nil means the emergency set is active (or worse).
func (c *Controller) revertChain(ctx context.Context, snapshot []byte, applyID string) error {
	c.setState(StateReverting)

	err := c.runner.Restore(ctx, snapshot)
	c.record(audit.EventRevertRules, err == nil, tagged(applyID, nil), err)
	if err != nil {
		return c.enterFallback(ctx, err)
	}

	c.mu.Lock()
	c.snapshot = nil
	c.state = StateIdle
	c.mu.Unlock()
	return nil
}

// enterFallback applies the built-in permissive set and surfaces the full
// failure chain. The snapshot is kept: a later revert may still work.
func (c *Controller) enterFallback(ctx context.Context, cause error) error {
	c.setState(StateFallback)
	c.log.Error("restore failed, applying emergency fallback", "error", cause)

	ferr := c.runner.EmergencyFallback(ctx)

	c.mu.Lock()
	c.emergency = ferr == nil
	c.state = StateIdle
	c.mu.Unlock()

	if ferr != nil {
		return errors.Wrapf(cause, errors.KindSubprocess,
			"restore failed and emergency fallback failed (%v)", ferr)
	}
	return errors.Wrap(cause, errors.KindSubprocess,
		"restore failed; emergency ruleset is now active")
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) toIdle() {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
}
