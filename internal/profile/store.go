// Package profile persists named rulesets as JSON files in the data
// directory. Writes are atomic (temp file, fsync, rename) and every profile
// carries a .sha256 sidecar that readers verify on load.
package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/fsutil"
	"grimm.is/warden/internal/logging"
	"grimm.is/warden/internal/paths"
	"grimm.is/warden/internal/rules"
	"grimm.is/warden/internal/validation"
)

// DefaultName is the reserved profile that always exists and can be
// neither deleted nor renamed.
const DefaultName = "default"

// FileMode is the permission for profile files and their sidecars.
const FileMode = 0o600

// LoadReport describes everything non-fatal that happened while loading a
// profile: normalisation of imported values, legacy schema conversion, and
// checksum trouble.
type LoadReport struct {
	// Notes are human-readable normalisation messages, one per repair.
	Notes []string

	// Legacy is set when the file used the old single-source schema.
	Legacy bool

	// ChecksumMissing is set when no .sha256 sidecar was found.
	ChecksumMissing bool

	// ChecksumMismatch is set when the sidecar digest did not match the
	// file bytes. The load still proceeds.
	ChecksumMismatch bool
}

// Store reads and writes profiles under a single directory.
type Store struct {
	// Dir overrides the default profiles directory. Empty means
	// paths.ProfilesDir().
	Dir string

	log *logging.Logger
}

// NewStore returns a store rooted at the standard profiles directory.
func NewStore() *Store {
	return &Store{log: logging.Default().WithComponent("profile")}
}

func (s *Store) dir() string {
	if s.Dir != "" {
		return s.Dir
	}
	return paths.ProfilesDir()
}

func (s *Store) logger() *logging.Logger {
	if s.log == nil {
		s.log = logging.Default().WithComponent("profile")
	}
	return s.log
}

// Path returns the on-disk location for a profile name after validating it.
func (s *Store) Path(name string) (string, error) {
	if err := validation.ValidateProfileName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir(), name+".json"), nil
}

func sidecarPath(profilePath string) string {
	return strings.TrimSuffix(profilePath, ".json") + ".sha256"
}

// List returns all profile names, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.KindIO, "listing profiles")
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether a profile file is present.
func (s *Store) Exists(name string) bool {
	path, err := s.Path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes the ruleset atomically and refreshes the checksum sidecar.
func (s *Store) Save(name string, rs *rules.FirewallRuleset) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir(), paths.DirMode); err != nil {
		return errors.Wrap(err, errors.KindIO, "creating profiles directory")
	}

	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return errors.Wrapf(err, errors.KindCodec, "encoding profile %s", name)
	}

	if err := fsutil.WriteFileAtomic(path, data, FileMode); err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if err := fsutil.WriteFileAtomic(sidecarPath(path), []byte(digest), FileMode); err != nil {
		return err
	}

	s.logger().Debug("saved profile", "name", name, "bytes", len(data))
	return nil
}

// Load reads, verifies, and normalises a profile. A checksum mismatch is
// reported but does not block the load; a parse failure returns an empty
// ruleset under the same name along with the error, so the caller can keep
// running while surfacing the corruption.
func (s *Store) Load(name string) (*rules.FirewallRuleset, *LoadReport, error) {
	report := &LoadReport{}
	path, err := s.Path(name)
	if err != nil {
		return nil, report, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, report, errors.Errorf(errors.KindNotFound, "profile not found: %s", name)
		}
		return nil, report, errors.Wrapf(err, errors.KindIO, "reading profile %s", name)
	}

	s.verifyChecksum(path, data, report)

	rs, err := decodeRuleset(data, report)
	if err != nil {
		s.logger().Error("profile parse failed", "name", name, "error", err)
		return rules.NewRuleset(), report, errors.Wrapf(err, errors.KindCodec, "parsing profile %s", name)
	}

	report.Notes = append(report.Notes, rs.Normalize()...)
	return rs, report, nil
}

func (s *Store) verifyChecksum(path string, data []byte, report *LoadReport) {
	want, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		report.ChecksumMissing = true
		return
	}
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if got != strings.TrimSpace(string(want)) {
		report.ChecksumMismatch = true
		s.logger().Warn("profile checksum mismatch", "path", path)
	}
}

// Delete removes a profile and its sidecar. The default profile cannot be
// deleted: the application would be left with no valid profile to fall
// back to.
func (s *Store) Delete(name string) error {
	if name == DefaultName {
		return errors.New(errors.KindValidation, "cannot delete default profile")
	}
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, errors.KindIO, "deleting profile %s", name)
	}
	os.Remove(sidecarPath(path))
	return nil
}

// Rename moves a profile to a new name. The default profile is protected,
// and an existing target is never overwritten.
func (s *Store) Rename(oldName, newName string) error {
	if oldName == DefaultName {
		return errors.New(errors.KindValidation, "cannot rename default profile")
	}
	oldPath, err := s.Path(oldName)
	if err != nil {
		return err
	}
	newPath, err := s.Path(newName)
	if err != nil {
		return err
	}
	if _, err := os.Stat(oldPath); err != nil {
		return errors.Errorf(errors.KindNotFound, "profile not found: %s", oldName)
	}
	if _, err := os.Stat(newPath); err == nil {
		return errors.Errorf(errors.KindConflict, "profile already exists: %s", newName)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return errors.Wrapf(err, errors.KindIO, "renaming profile %s", oldName)
	}
	// Move the sidecar too; if it is missing the next save recreates it.
	if err := os.Rename(sidecarPath(oldPath), sidecarPath(newPath)); err != nil && !os.IsNotExist(err) {
		s.logger().Warn("failed to move checksum sidecar", "profile", newName, "error", err)
	}
	return nil
}

// EnsureDefault creates an empty default profile if none exists, keeping
// the invariant that "default" always resolves.
func (s *Store) EnsureDefault() error {
	if s.Exists(DefaultName) {
		return nil
	}
	return s.Save(DefaultName, rules.NewRuleset())
}

// decodeRuleset parses profile JSON. Rules are decoded one at a time so
// that files written by older releases — a singular "source" string and
// "ports" as one {start,end} object — convert cleanly instead of failing
// the whole file. Conversions land in the report.
func decodeRuleset(data []byte, report *LoadReport) (*rules.FirewallRuleset, error) {
	var file struct {
		Rules            []json.RawMessage       `json:"rules"`
		AdvancedSecurity *rules.AdvancedSecurity `json:"advanced_security"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	rs := rules.NewRuleset()
	if file.AdvancedSecurity != nil {
		rs.AdvancedSecurity = *file.AdvancedSecurity
	}

	for i, raw := range file.Rules {
		converted, notes, err := convertLegacyRule(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if len(notes) > 0 {
			report.Legacy = true
		}
		for _, n := range notes {
			report.Notes = append(report.Notes, fmt.Sprintf("rule %d: %s", i, n))
		}
		var r rules.Rule
		if err := json.Unmarshal(converted, &r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rs.Rules = append(rs.Rules, r)
	}

	rs.RebuildCaches()
	return rs, nil
}

// legacyProtocols maps the old schema's variant spellings to current
// protocol keywords.
var legacyProtocols = map[string]string{
	"Any":       "any",
	"Tcp":       "tcp",
	"Udp":       "udp",
	"TcpAndUdp": "tcp+udp",
	"Icmp":      "icmp",
	"Icmpv6":    "icmpv6",
}

var legacyChains = map[string]string{
	"Input":  "input",
	"Output": "output",
}

// convertLegacyRule rewrites legacy keys into the current schema.
func convertLegacyRule(raw json.RawMessage) (json.RawMessage, []string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, err
	}

	var notes []string

	if n, ok := remapEnum(obj, "protocol", legacyProtocols); ok {
		notes = append(notes, n)
	}
	if n, ok := remapEnum(obj, "chain", legacyChains); ok {
		notes = append(notes, n)
	}

	if src, ok := obj["source"]; ok {
		delete(obj, "source")
		var addr string
		if err := json.Unmarshal(src, &addr); err == nil && addr != "" {
			sources, _ := json.Marshal([]string{addr})
			obj["sources"] = sources
			notes = append(notes, "converted legacy source field")
		}
	}

	if ports, ok := obj["ports"]; ok {
		trimmed := strings.TrimSpace(string(ports))
		switch {
		case trimmed == "null":
			delete(obj, "ports")
		case strings.HasPrefix(trimmed, "{"):
			// single {start,end} object becomes a one-element list
			obj["ports"] = json.RawMessage("[" + trimmed + "]")
			notes = append(notes, "converted legacy ports field")
		}
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, nil, err
	}
	return out, notes, nil
}

func remapEnum(obj map[string]json.RawMessage, key string, table map[string]string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}
	var val string
	if err := json.Unmarshal(raw, &val); err != nil {
		return "", false
	}
	mapped, ok := table[val]
	if !ok {
		return "", false
	}
	out, _ := json.Marshal(mapped)
	obj[key] = out
	return fmt.Sprintf("converted legacy %s %q", key, val), true
}
