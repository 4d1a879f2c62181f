package nftexec

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"grimm.is/warden/internal/brand"
	"grimm.is/warden/internal/errors"
)

// pkexec exit codes, per its man page.
const (
	pkexecExitDismissed  = 126 // user closed the authentication dialog
	pkexecExitAuthFailed = 127 // authentication failed or not authorized
)

// noElevationEnv bypasses privilege elevation entirely; meant for tests and
// for running as a user that already holds CAP_NET_ADMIN.
var noElevationEnv = brand.ConfigEnvPrefix + "_NO_ELEVATION"

// elevatedNftArgv builds the argv for an elevated nft invocation.
// Arguments are passed directly without shell interpretation.
//
// Strategy: run0 when available (systemd v256+, no SUID bit), then sudo on
// a terminal, then pkexec for graphical authentication.
func elevatedNftArgv(nftPath string, args ...string) ([]string, error) {
	if os.Getenv(noElevationEnv) != "" || os.Geteuid() == 0 {
		return append([]string{nftPath}, args...), nil
	}

	if binaryExists("run0") {
		return append([]string{"run0", nftPath}, args...), nil
	}

	if stdinIsTerminal() {
		return append([]string{"sudo", nftPath}, args...), nil
	}

	if !binaryExists("pkexec") {
		return nil, errors.New(errors.KindSubprocess,
			"no elevation helper found: install run0, sudo, or pkexec")
	}
	return append([]string{"pkexec", nftPath}, args...), nil
}

// unelevatedNftArgv builds the argv for a plain nft invocation, used for
// syntax checks which do not touch the kernel.
func unelevatedNftArgv(nftPath string, args ...string) []string {
	return append([]string{nftPath}, args...)
}

func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// binaryExists reports whether name resolves to an executable on PATH.
func binaryExists(name string) bool {
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			continue
		}
		fi, err := os.Stat(filepath.Join(dir, name))
		if err != nil || fi.IsDir() {
			continue
		}
		if fi.Mode().Perm()&0o111 != 0 {
			return true
		}
	}
	return false
}

// PolkitAgentRunning reports whether a polkit authentication agent is
// available, so a pkexec prompt would actually appear. polkitd itself and
// the tty agent do not count.
func PolkitAgentRunning() bool {
	out, err := exec.Command("pgrep", "-a", "polkit").Output()
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		if line == "" || strings.Contains(line, "polkitd") || strings.Contains(line, "pkttyagent") {
			continue
		}
		return true
	}
	return false
}

// ElevationCancelled reports whether err is an elevated invocation the user
// dismissed at the authentication prompt.
func ElevationCancelled(err error) bool {
	re := asRunError(err)
	return re != nil && re.Elevated && re.ExitCode == pkexecExitDismissed
}

// ElevationFailed reports whether err is an elevated invocation that was
// denied by the authentication layer.
func ElevationFailed(err error) bool {
	re := asRunError(err)
	return re != nil && re.Elevated && re.ExitCode == pkexecExitAuthFailed
}
