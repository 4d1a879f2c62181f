package paths

import (
	"os"
	"path/filepath"
	"testing"

	"grimm.is/warden/internal/brand"
)

func TestEnvOverridesWin(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(brand.ConfigEnvPrefix+"_CONFIG_DIR", filepath.Join(tmp, "cfg"))
	t.Setenv(brand.ConfigEnvPrefix+"_DATA_DIR", filepath.Join(tmp, "data"))
	t.Setenv(brand.ConfigEnvPrefix+"_STATE_DIR", filepath.Join(tmp, "state"))

	if ConfigDir() != filepath.Join(tmp, "cfg") {
		t.Errorf("ConfigDir = %s", ConfigDir())
	}
	if DataDir() != filepath.Join(tmp, "data") {
		t.Errorf("DataDir = %s", DataDir())
	}
	if StateDir() != filepath.Join(tmp, "state") {
		t.Errorf("StateDir = %s", StateDir())
	}
	if ProfilesDir() != filepath.Join(tmp, "data", "profiles") {
		t.Errorf("ProfilesDir = %s", ProfilesDir())
	}
	if AuditLogPath() != filepath.Join(tmp, "state", brand.AuditFileName) {
		t.Errorf("AuditLogPath = %s", AuditLogPath())
	}
}

func TestXDGFallback(t *testing.T) {
	t.Setenv(brand.ConfigEnvPrefix+"_CONFIG_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")

	want := filepath.Join("/tmp/xdg-config", brand.LowerName)
	if ConfigDir() != want {
		t.Errorf("ConfigDir = %s, want %s", ConfigDir(), want)
	}
}

func TestEnsureDirs(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(brand.ConfigEnvPrefix+"_CONFIG_DIR", filepath.Join(tmp, "cfg"))
	t.Setenv(brand.ConfigEnvPrefix+"_DATA_DIR", filepath.Join(tmp, "data"))
	t.Setenv(brand.ConfigEnvPrefix+"_STATE_DIR", filepath.Join(tmp, "state"))

	if err := EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}

	for _, dir := range []string{ConfigDir(), DataDir(), StateDir(), ProfilesDir(), SnapshotsDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
		if perm := info.Mode().Perm(); perm != DirMode {
			t.Errorf("%s has mode %o, want %o", dir, perm, DirMode)
		}
	}
}
