package nftexec

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/paths"
)

// stubRunner records calls; Restore fails for blobs listed in failOn.
type stubRunner struct {
	restored [][]byte
	failOn   map[string]bool
}

func (s *stubRunner) Check(ctx context.Context, wire []byte) error { return nil }
func (s *stubRunner) Apply(ctx context.Context, wire []byte) error { return nil }
func (s *stubRunner) Snapshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (s *stubRunner) EmergencyFallback(ctx context.Context) error  { return nil }

func (s *stubRunner) Restore(ctx context.Context, blob []byte) error {
	s.restored = append(s.restored, blob)
	if s.failOn[string(blob)] {
		return errors.New(errors.KindSubprocess, "restore failed")
	}
	return nil
}

func tempStateDir(t *testing.T) {
	t.Helper()
	t.Setenv("WARDEN_STATE_DIR", t.TempDir())
	t.Setenv("WARDEN_CONFIG_DIR", t.TempDir())
	t.Setenv("WARDEN_DATA_DIR", t.TempDir())
}

const sampleSnapshot = `{"nftables":[{"metainfo":{"version":"1.0.9","json_schema_version":1}},{"table":{"family":"inet","name":"warden"}},{"chain":{"family":"inet","table":"warden","name":"input","type":"filter","hook":"input","prio":-10,"policy":"drop"}}]}`

func TestValidateSnapshot(t *testing.T) {
	require.NoError(t, ValidateSnapshot([]byte(sampleSnapshot)))
	require.NoError(t, ValidateSnapshot([]byte(`{"nftables":[]}`)))

	assert.Error(t, ValidateSnapshot([]byte(`not json`)))
	assert.Error(t, ValidateSnapshot([]byte(`{"other":true}`)))
}

func TestRestoreBatchPrependsTableReset(t *testing.T) {
	batch, err := RestoreBatch([]byte(sampleSnapshot))
	require.NoError(t, err)

	var doc struct {
		Nftables []map[string]json.RawMessage `json:"nftables"`
	}
	require.NoError(t, json.Unmarshal(batch, &doc))
	require.Len(t, doc.Nftables, 4)

	assert.Contains(t, doc.Nftables[0], "add")
	assert.Contains(t, doc.Nftables[1], "delete")
	assert.Contains(t, doc.Nftables[2], "table")
	assert.Contains(t, doc.Nftables[3], "chain")

	// metainfo from the listing must not reach the kernel helper
	assert.NotContains(t, string(batch), "metainfo")
	assert.Contains(t, string(doc.Nftables[1]["delete"]), `"warden"`)
}

func TestRestoreBatchEmptySnapshotRemovesTable(t *testing.T) {
	batch, err := RestoreBatch([]byte(`{"nftables":[]}`))
	require.NoError(t, err)

	var doc struct {
		Nftables []map[string]json.RawMessage `json:"nftables"`
	}
	require.NoError(t, json.Unmarshal(batch, &doc))
	require.Len(t, doc.Nftables, 2)
	assert.Contains(t, doc.Nftables[0], "add")
	assert.Contains(t, doc.Nftables[1], "delete")
}

func TestSaveSnapshotWritesRestrictedFile(t *testing.T) {
	tempStateDir(t)

	path, err := SaveSnapshot([]byte(sampleSnapshot))
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, filepath.Join(paths.SnapshotsDir(), filepath.Base(path)), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot, string(data))
}

func TestSaveSnapshotRejectsGarbage(t *testing.T) {
	tempStateDir(t)
	_, err := SaveSnapshot([]byte("not a snapshot"))
	assert.Error(t, err)
}

func TestSnapshotCleanupKeepsNewest(t *testing.T) {
	tempStateDir(t)

	var last string
	for i := 0; i < MaxSnapshots+3; i++ {
		path, err := SaveSnapshot([]byte(sampleSnapshot))
		require.NoError(t, err)
		last = path
	}

	snaps, err := ListSnapshots()
	require.NoError(t, err)
	assert.Len(t, snaps, MaxSnapshots)
	assert.Equal(t, last, snaps[0])
}

func TestListSnapshotsMissingDir(t *testing.T) {
	tempStateDir(t)
	snaps, err := ListSnapshots()
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestRestoreNewestCascades(t *testing.T) {
	tempStateDir(t)

	bad := `{"nftables":[{"table":{"family":"inet","name":"warden"}},{"chain":{"family":"inet","table":"warden","name":"bad"}}]}`
	_, err := SaveSnapshot([]byte(sampleSnapshot))
	require.NoError(t, err)
	_, err = SaveSnapshot([]byte(bad))
	require.NoError(t, err)

	r := &stubRunner{failOn: map[string]bool{bad: true}}
	require.NoError(t, RestoreNewest(context.Background(), r))

	// newest (bad) was tried first, then the older good one succeeded
	require.Len(t, r.restored, 2)
	assert.Equal(t, bad, string(r.restored[0]))
	assert.Equal(t, sampleSnapshot, string(r.restored[1]))
}

func TestRestoreNewestNoSnapshots(t *testing.T) {
	tempStateDir(t)
	err := RestoreNewest(context.Background(), &stubRunner{})
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestRestoreNewestAllFail(t *testing.T) {
	tempStateDir(t)
	_, err := SaveSnapshot([]byte(sampleSnapshot))
	require.NoError(t, err)

	r := &stubRunner{failOn: map[string]bool{sampleSnapshot: true}}
	err = RestoreNewest(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, errors.KindSubprocess, errors.GetKind(err))
}
