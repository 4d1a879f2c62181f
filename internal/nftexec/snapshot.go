package nftexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"grimm.is/warden/internal/brand"
	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/logging"
	"grimm.is/warden/internal/nftgen"
	"grimm.is/warden/internal/paths"
)

// MaxSnapshots is how many on-disk snapshots survive cleanup.
const MaxSnapshots = 5

const snapshotPrefix = "snapshot_"

// snapshotDoc is the loose shape of `nft --json list table` output. Each
// element is kept raw so unknown object types survive a round trip.
type snapshotDoc struct {
	Nftables []json.RawMessage `json:"nftables"`
}

// ValidateSnapshot checks that a blob has the nftables envelope. A blob
// without table objects is allowed: restoring it removes the table, which
// is the correct outcome when the snapshot was taken before it existed.
func ValidateSnapshot(blob []byte) error {
	var doc snapshotDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return errors.Wrap(err, errors.KindCodec, "parsing snapshot")
	}
	if doc.Nftables == nil {
		return errors.New(errors.KindCodec, "snapshot has no nftables array")
	}
	return nil
}

// RestoreBatch turns a snapshot blob into the batch fed to nft: add the
// table (so the delete below cannot fail when the table is absent), delete
// it, then replay the snapshot objects. metainfo entries from the listing
// are dropped.
func RestoreBatch(snapshot []byte) ([]byte, error) {
	if err := ValidateSnapshot(snapshot); err != nil {
		return nil, err
	}
	var doc snapshotDoc
	if err := json.Unmarshal(snapshot, &doc); err != nil {
		return nil, errors.Wrap(err, errors.KindCodec, "parsing snapshot")
	}

	tableObj := &nftgen.Object{Table: &nftgen.TableSpec{Family: "inet", Name: brand.TableName}}
	prefix := []nftgen.Instruction{
		{Add: tableObj},
		{Delete: tableObj},
	}

	batch := make([]json.RawMessage, 0, len(prefix)+len(doc.Nftables))
	for _, in := range prefix {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindCodec, "encoding restore batch")
		}
		batch = append(batch, raw)
	}
	for _, obj := range doc.Nftables {
		if isMetainfo(obj) {
			continue
		}
		batch = append(batch, obj)
	}

	out, err := json.Marshal(snapshotDoc{Nftables: batch})
	if err != nil {
		return nil, errors.Wrap(err, errors.KindCodec, "encoding restore batch")
	}
	return out, nil
}

func isMetainfo(obj json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(obj, &probe); err != nil {
		return false
	}
	_, ok := probe["metainfo"]
	return ok
}

// SaveSnapshot persists a blob under the state dir as
// snapshot_<unix-nanos>.json and prunes old ones. Returns the written path.
func SaveSnapshot(blob []byte) (string, error) {
	if err := ValidateSnapshot(blob); err != nil {
		return "", err
	}
	if err := paths.EnsureDirs(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s%d.json", snapshotPrefix, time.Now().UnixNano())
	path := filepath.Join(paths.SnapshotsDir(), name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindIO, "creating snapshot %s", path)
	}
	_, err = f.Write(blob)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", errors.Wrapf(err, errors.KindIO, "writing snapshot %s", path)
	}

	CleanupSnapshots()
	return path, nil
}

// ListSnapshots returns on-disk snapshot paths, newest first.
func ListSnapshots() ([]string, error) {
	entries, err := os.ReadDir(paths.SnapshotsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.KindIO, "listing snapshots")
	}

	type snap struct {
		path string
		mod  time.Time
	}
	var snaps []snap
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, snap{filepath.Join(paths.SnapshotsDir(), name), info.ModTime()})
	}
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].mod.Equal(snaps[j].mod) {
			return snaps[i].mod.After(snaps[j].mod)
		}
		// Nanosecond timestamps in the name break modtime ties.
		return snaps[i].path > snaps[j].path
	})

	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.path
	}
	return out, nil
}

// CleanupSnapshots removes everything past the newest MaxSnapshots.
// Failures are logged, not returned: pruning must never block an apply.
func CleanupSnapshots() {
	log := logging.Default().WithComponent("nftexec")
	snaps, err := ListSnapshots()
	if err != nil {
		log.Warn("snapshot cleanup skipped", "error", err)
		return
	}
	for _, path := range snaps[min(len(snaps), MaxSnapshots):] {
		if err := os.Remove(path); err != nil {
			log.Warn("failed to remove old snapshot", "path", path, "error", err)
		} else {
			log.Debug("removed old snapshot", "path", path)
		}
	}
}

// RestoreNewest tries on-disk snapshots newest to oldest until one
// restores cleanly.
func RestoreNewest(ctx context.Context, r Runner) error {
	log := logging.Default().WithComponent("nftexec")
	snaps, err := ListSnapshots()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return errors.New(errors.KindNotFound, "no snapshots available for restoration")
	}

	var lastErr error
	for i, path := range snaps {
		blob, err := os.ReadFile(path)
		if err != nil {
			log.Warn("unreadable snapshot", "path", path, "error", err)
			lastErr = errors.Wrapf(err, errors.KindIO, "reading snapshot %s", path)
			continue
		}
		// Skip truncated writes from a crashed process.
		if !bytes.HasPrefix(bytes.TrimSpace(blob), []byte("{")) {
			log.Warn("malformed snapshot", "path", path)
			lastErr = errors.Errorf(errors.KindCodec, "malformed snapshot %s", path)
			continue
		}
		if err := r.Restore(ctx, blob); err != nil {
			log.Warn("snapshot restore failed", "path", path, "attempt", i+1, "error", err)
			lastErr = err
			continue
		}
		log.Info("restored snapshot", "path", path, "attempt", i+1)
		return nil
	}
	return errors.Wrapf(lastErr, errors.KindSubprocess, "all %d snapshots failed to restore", len(snaps))
}
