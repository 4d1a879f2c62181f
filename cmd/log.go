package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"grimm.is/warden/internal/audit"
	"grimm.is/warden/internal/paths"
)

// RunLog prints recent audit log entries, newest first.
func RunLog(args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	var (
		lines      int
		eventType  string
		failedOnly bool
		asJSON     bool
	)
	fs.IntVar(&lines, "lines", 50, "Number of entries to show")
	fs.IntVar(&lines, "n", 50, "Alias for -lines")
	fs.StringVar(&eventType, "type", "", "Filter by event type, e.g. apply-rules")
	fs.StringVar(&eventType, "t", "", "Alias for -type")
	fs.BoolVar(&failedOnly, "failed", false, "Show failed operations only")
	fs.BoolVar(&asJSON, "json", false, "Print raw JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}

	events, err := audit.ReadRecent(paths.AuditLogPath(), lines)
	if err != nil {
		return err
	}

	filtered := events[:0]
	for _, e := range events {
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		if failedOnly && e.Success {
			continue
		}
		filtered = append(filtered, e)
	}

	if len(filtered) == 0 {
		fmt.Println("No matching audit entries.")
		return nil
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, e := range filtered {
			enc.Encode(e)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tOK\tDETAIL")
	for _, e := range filtered {
		status := "yes"
		if !e.Success {
			status = "NO"
		}
		detail := e.Error
		if detail == "" {
			detail = compactDetails(e.Details)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Type, status, detail)
	}
	return w.Flush()
}

func compactDetails(details map[string]any) string {
	if len(details) == 0 {
		return "-"
	}
	data, err := json.Marshal(details)
	if err != nil {
		return "-"
	}
	return string(data)
}
