package nftexec

import (
	"encoding/json"
	"strings"
)

// ParseErrors extracts human-readable messages from nft stderr. With
// --json nft reports {"errors":[{"message":...}]}; older paths emit plain
// lines prefixed with "Error: " or "nft: ".
func ParseErrors(stderr string) []string {
	var structured struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(stderr), &structured); err == nil && len(structured.Errors) > 0 {
		msgs := make([]string, 0, len(structured.Errors))
		for _, e := range structured.Errors {
			if e.Message != "" {
				msgs = append(msgs, e.Message)
			}
		}
		if len(msgs) > 0 {
			return msgs
		}
	}

	var msgs []string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "Error: ")
		line = strings.TrimPrefix(line, "nft: ")
		if line == "" {
			continue
		}
		msgs = append(msgs, line)
	}
	return msgs
}
