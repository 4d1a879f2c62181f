package nftexec

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"grimm.is/warden/internal/brand"
	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/logging"
	"grimm.is/warden/internal/nftgen"
)

// DefaultTimeout caps every nft invocation, including the time a privilege
// prompt may sit on screen.
const DefaultTimeout = 30 * time.Second

// ExecRunner is the production Runner. It shells out to nft, elevating
// through run0, sudo, or pkexec as the environment dictates.
type ExecRunner struct {
	// NftPath is the nft binary to invoke. Defaults to "nft".
	NftPath string

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration

	log *logging.Logger
}

// NewExecRunner returns a runner using the nft binary from PATH.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		NftPath: "nft",
		Timeout: DefaultTimeout,
		log:     logging.Default().WithComponent("nftexec"),
	}
}

// RunError carries the outcome of a failed nft invocation.
type RunError struct {
	Argv     []string
	ExitCode int
	Stderr   string
	Elevated bool
}

func (e *RunError) Error() string {
	msgs := ParseErrors(e.Stderr)
	if len(msgs) == 0 {
		return fmt.Sprintf("%s exited with code %d", e.Argv[0], e.ExitCode)
	}
	return fmt.Sprintf("%s failed: %s", e.Argv[0], strings.Join(msgs, "; "))
}

func asRunError(err error) *RunError {
	var re *RunError
	if stderrors.As(err, &re) {
		return re
	}
	return nil
}

// Messages returns the parsed nft error messages for err, or nil if err
// did not come from an nft invocation.
func Messages(err error) []string {
	if re := asRunError(err); re != nil {
		return ParseErrors(re.Stderr)
	}
	return nil
}

func (r *ExecRunner) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

func (r *ExecRunner) nftPath() string {
	if r.NftPath != "" {
		return r.NftPath
	}
	return "nft"
}

func (r *ExecRunner) logger() *logging.Logger {
	if r.log == nil {
		r.log = logging.Default().WithComponent("nftexec")
	}
	return r.log
}

// run executes argv with stdin, enforcing the wall-clock cap. stdout is
// returned on success; on failure the error wraps a *RunError.
func (r *ExecRunner) run(ctx context.Context, argv []string, stdin []byte, elevated bool) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return nil, errors.Errorf(errors.KindTimeout,
			"%s did not finish within %s", argv[0], r.timeout())
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	runErr := &RunError{
		Argv:     argv,
		ExitCode: exitCode,
		Stderr:   stderr.String(),
		Elevated: elevated,
	}
	return nil, errors.Wrapf(runErr, errors.KindSubprocess, "running %s", strings.Join(argv, " "))
}

// Check validates the wire document without touching the kernel.
func (r *ExecRunner) Check(ctx context.Context, wire []byte) error {
	argv := unelevatedNftArgv(r.nftPath(), "--json", "--check", "-f", "-")
	if _, err := r.run(ctx, argv, wire, false); err != nil {
		return err
	}
	return nil
}

// Apply loads the wire document into the kernel atomically.
func (r *ExecRunner) Apply(ctx context.Context, wire []byte) error {
	argv, err := elevatedNftArgv(r.nftPath(), "--json", "-f", "-")
	if err != nil {
		return err
	}
	r.logger().Info("applying ruleset", "bytes", len(wire))
	if _, err := r.run(ctx, argv, wire, true); err != nil {
		return err
	}
	return nil
}

// Snapshot lists the managed table. A missing table is not an error: the
// returned blob is empty of objects, and restoring it removes the table.
func (r *ExecRunner) Snapshot(ctx context.Context) ([]byte, error) {
	argv, err := elevatedNftArgv(r.nftPath(), "--json", "list", "table", "inet", brand.TableName)
	if err != nil {
		return nil, err
	}
	out, err := r.run(ctx, argv, nil, true)
	if err != nil {
		if re := asRunError(err); re != nil && tableMissing(re.Stderr) {
			return []byte(`{"nftables":[]}`), nil
		}
		return nil, err
	}
	return out, nil
}

// tableMissing matches the stderr nft emits when listing an absent table.
func tableMissing(stderr string) bool {
	return strings.Contains(stderr, "No such file or directory") ||
		strings.Contains(stderr, "does not exist")
}

// Restore replaces the managed table with the snapshot contents. The batch
// first deletes the table (adding it beforehand so the delete cannot fail)
// and then replays the snapshot objects.
func (r *ExecRunner) Restore(ctx context.Context, snapshot []byte) error {
	batch, err := RestoreBatch(snapshot)
	if err != nil {
		return err
	}
	argv, err := elevatedNftArgv(r.nftPath(), "--json", "-f", "-")
	if err != nil {
		return err
	}
	r.logger().Info("restoring snapshot", "bytes", len(snapshot))
	if _, err := r.run(ctx, argv, batch, true); err != nil {
		return err
	}
	return nil
}

// EmergencyFallback applies the built-in permissive ruleset.
func (r *ExecRunner) EmergencyFallback(ctx context.Context) error {
	wire, err := EmergencyWire()
	if err != nil {
		return err
	}
	argv, err := elevatedNftArgv(r.nftPath(), "--json", "-f", "-")
	if err != nil {
		return err
	}
	r.logger().Warn("applying emergency fallback ruleset")
	if _, err := r.run(ctx, argv, wire, true); err != nil {
		return err
	}
	return nil
}

var _ Runner = (*ExecRunner)(nil)

// EmergencyWire builds the permissive fallback document: accept-policy
// chains with loopback and tracked connections explicitly allowed, so the
// host stays reachable while the user sorts out what went wrong.
func EmergencyWire() ([]byte, error) {
	doc := nftgen.EmergencyDocument()
	wire, err := nftgen.MarshalDocument(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindCodec, "encoding emergency ruleset")
	}
	return wire, nil
}
