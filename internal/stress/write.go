package stress

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/fsutil"
	"grimm.is/warden/internal/nftexec"
	"grimm.is/warden/internal/nftgen"
	"grimm.is/warden/internal/rules"
)

// WriteProfile writes the generated ruleset as a profile JSON file with
// a checksum sidecar in the same format the profile store produces, so
// the output loads cleanly. Returns the sidecar path.
func WriteProfile(path string, rs *rules.FirewallRuleset) (string, error) {
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.KindCodec, "encoding generated profile")
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	sidecar := strings.TrimSuffix(path, ".json") + ".sha256"
	if err := fsutil.WriteFileAtomic(sidecar, []byte(hex.EncodeToString(sum[:])), 0o600); err != nil {
		return "", err
	}
	return sidecar, nil
}

// Verify runs the generated ruleset through the wire encoder and nft's
// syntax check without touching the live tables.
func Verify(ctx context.Context, runner nftexec.Runner, rs *rules.FirewallRuleset) error {
	wire, err := nftgen.EncodeWire(rs)
	if err != nil {
		return err
	}
	return runner.Check(ctx, wire)
}
