package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"grimm.is/warden/internal/audit"
	"grimm.is/warden/internal/config"
	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/fsutil"
	"grimm.is/warden/internal/nftgen"
	"grimm.is/warden/internal/profile"
)

// RunExport writes a profile to a file in a portable format: yaml or
// json for re-import elsewhere, or nft for feeding straight to nft -f.
func RunExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	var (
		profileName string
		format      string
		output      string
	)
	fs.StringVar(&profileName, "profile", "", "Profile to export (default: active profile)")
	fs.StringVar(&profileName, "p", "", "Alias for -profile")
	fs.StringVar(&format, "format", "yaml", "Export format: yaml, json, nft")
	fs.StringVar(&format, "f", "yaml", "Alias for -format")
	fs.StringVar(&output, "output", "", "Output file (default: stdout)")
	fs.StringVar(&output, "o", "", "Alias for -output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := profile.NewStore()
	if profileName == "" {
		cfg := config.Load()
		name, err := config.ResolveActiveProfile(&cfg, store)
		if err != nil {
			return err
		}
		profileName = name
	}

	rs, _, err := store.Load(profileName)
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case "yaml":
		// Round-trip through JSON so the YAML keys match the profile
		// schema instead of Go field names.
		raw, err := json.Marshal(rs)
		if err != nil {
			return errors.Wrap(err, errors.KindCodec, "encoding profile")
		}
		var generic map[string]interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return errors.Wrap(err, errors.KindCodec, "decoding profile")
		}
		data, err = yaml.Marshal(generic)
		if err != nil {
			return errors.Wrap(err, errors.KindCodec, "encoding profile as yaml")
		}
	case "json":
		data, err = json.MarshalIndent(rs, "", "  ")
		if err != nil {
			return errors.Wrap(err, errors.KindCodec, "encoding profile")
		}
		data = append(data, '\n')
	case "nft":
		data = []byte(nftgen.EncodeText(rs))
	default:
		return fmt.Errorf("unknown format %q (yaml, json, nft)", format)
	}

	auditLog := audit.NewLog()
	defer auditLog.Close()

	if output == "" {
		os.Stdout.Write(data)
		auditLog.Record(audit.NewEvent(audit.EventExportCompleted, true,
			map[string]any{"profile": profileName, "format": format, "output": "stdout"}, nil))
		return nil
	}

	err = fsutil.WriteFileAtomic(output, data, 0o644)
	auditLog.Record(audit.NewEvent(audit.EventExportCompleted, err == nil,
		map[string]any{"profile": profileName, "format": format, "output": output}, err))
	if err != nil {
		return err
	}
	fmt.Printf("Exported %q to %s\n", profileName, output)
	return nil
}
