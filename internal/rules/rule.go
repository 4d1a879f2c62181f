package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"grimm.is/warden/internal/validation"
)

// Rule is a single user-defined firewall rule. Primary fields are
// persisted; the cache fields below them are derived and rebuilt by
// RebuildCaches after deserialization or mutation.
type Rule struct {
	ID              string      `json:"id"`
	Label           string      `json:"label"`
	Protocol        Protocol    `json:"protocol"`
	Ports           []PortEntry `json:"ports,omitempty"`
	Sources         []string    `json:"sources,omitempty"`
	Destinations    []string    `json:"destinations,omitempty"`
	Interface       string      `json:"interface,omitempty"`
	OutputInterface string      `json:"output_interface,omitempty"`
	Chain           Chain       `json:"chain"`
	Action          Action      `json:"action"`
	RejectType      RejectType  `json:"reject_type"`
	RateLimit       *RateLimit  `json:"rate_limit,omitempty"`
	ConnectionLimit uint32      `json:"connection_limit,omitempty"`
	LogEnabled      bool        `json:"log_enabled,omitempty"`
	Enabled         bool        `json:"enabled"`
	CreatedAt       time.Time   `json:"created_at"`
	Tags            []string    `json:"tags,omitempty"`

	// Cached fields for search filtering and view rendering. Never
	// edited directly; RebuildCaches recomputes all of them.
	LabelLower           string   `json:"-"`
	InterfaceLower       string   `json:"-"`
	OutputInterfaceLower string   `json:"-"`
	TagsLower            []string `json:"-"`
	ProtocolLower        string   `json:"-"`
	PortDisplay          string   `json:"-"`
	SourcesDisplay       string   `json:"-"`
	DestinationsDisplay  string   `json:"-"`
	RateLimitDisplay     string   `json:"-"`
	ActionDisplay        string   `json:"-"`
	InterfaceDisplay     string   `json:"-"`
	LogPrefix            string   `json:"-"`
}

// NewRule creates an enabled input/accept rule with a fresh ID and
// initialized caches.
func NewRule(label string, protocol Protocol) *Rule {
	r := &Rule{
		ID:         uuid.NewString(),
		Label:      label,
		Protocol:   protocol,
		Chain:      ChainInput,
		Action:     ActionAccept,
		RejectType: RejectDefault,
		Enabled:    true,
		CreatedAt:  time.Now().UTC(),
	}
	r.RebuildCaches()
	return r
}

// RebuildCaches recomputes every derived field. Must be called after
// deserialization or any primary field modification before the rule is
// read by the codec, filter, or view.
func (r *Rule) RebuildCaches() {
	r.LabelLower = strings.ToLower(r.Label)
	r.InterfaceLower = strings.ToLower(r.Interface)
	r.OutputInterfaceLower = strings.ToLower(r.OutputInterface)
	r.TagsLower = make([]string, len(r.Tags))
	for i, t := range r.Tags {
		r.TagsLower[i] = strings.ToLower(t)
	}
	r.ProtocolLower = string(r.Protocol)

	if len(r.Ports) == 0 {
		r.PortDisplay = "All"
	} else {
		parts := make([]string, len(r.Ports))
		for i, p := range r.Ports {
			parts[i] = p.String()
		}
		r.PortDisplay = strings.Join(parts, ", ")
	}

	r.SourcesDisplay = networksDisplay(r.Sources)
	r.DestinationsDisplay = networksDisplay(r.Destinations)

	if r.RateLimit != nil {
		r.RateLimitDisplay = r.RateLimit.String()
	} else {
		r.RateLimitDisplay = ""
	}

	r.ActionDisplay = r.Action.Display()

	if ChainUsesInputInterface(r.Chain) {
		r.InterfaceDisplay = interfaceDisplay(r.Interface)
	} else {
		r.InterfaceDisplay = interfaceDisplay(r.OutputInterface)
	}

	r.LogPrefix = buildLogPrefix(r.Label)
}

func networksDisplay(nets []string) string {
	if len(nets) == 0 {
		return "Any"
	}
	return strings.Join(nets, ", ")
}

func interfaceDisplay(iface string) string {
	if iface == "" {
		return "Any"
	}
	return iface
}

// buildLogPrefix derives the nft log prefix for a rule from its label.
// nft truncates long prefixes, so the label is sanitized and capped.
func buildLogPrefix(label string) string {
	s := validation.SanitizeLabel(label)
	if runes := []rune(s); len(runes) > 48 {
		s = string(runes[:48])
	}
	if s == "" {
		s = "rule"
	}
	return s + ": "
}

// SetLabel updates the label and its cached forms.
func (r *Rule) SetLabel(label string) {
	r.Label = label
	r.LabelLower = strings.ToLower(label)
	r.LogPrefix = buildLogPrefix(label)
}

// SetProtocol updates the protocol and its cached lowercase form.
// Callers changing protocol family should follow with Normalize to
// drop ports that no longer apply.
func (r *Rule) SetProtocol(p Protocol) {
	r.Protocol = p
	r.ProtocolLower = string(p)
}

// SetInterface updates the inbound interface and its cached forms.
func (r *Rule) SetInterface(iface string) {
	r.Interface = iface
	r.InterfaceLower = strings.ToLower(iface)
	if ChainUsesInputInterface(r.Chain) {
		r.InterfaceDisplay = interfaceDisplay(iface)
	}
}

// SetOutputInterface updates the outbound interface and its cached forms.
func (r *Rule) SetOutputInterface(iface string) {
	r.OutputInterface = iface
	r.OutputInterfaceLower = strings.ToLower(iface)
	if ChainUsesOutputInterface(r.Chain) {
		r.InterfaceDisplay = interfaceDisplay(iface)
	}
}

// AddTag appends a tag and its cached lowercase form.
func (r *Rule) AddTag(tag string) {
	r.Tags = append(r.Tags, tag)
	r.TagsLower = append(r.TagsLower, strings.ToLower(tag))
}

// RemoveTag removes the first occurrence of tag.
func (r *Rule) RemoveTag(tag string) {
	for i, t := range r.Tags {
		if t == tag {
			r.Tags = append(r.Tags[:i], r.Tags[i+1:]...)
			r.TagsLower = append(r.TagsLower[:i], r.TagsLower[i+1:]...)
			return
		}
	}
}

// SetTags replaces all tags and their cached lowercase forms.
func (r *Rule) SetTags(tags []string) {
	r.Tags = tags
	r.TagsLower = make([]string, len(tags))
	for i, t := range tags {
		r.TagsLower[i] = strings.ToLower(t)
	}
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	c := *r
	c.Ports = append([]PortEntry(nil), r.Ports...)
	c.Sources = append([]string(nil), r.Sources...)
	c.Destinations = append([]string(nil), r.Destinations...)
	c.Tags = append([]string(nil), r.Tags...)
	c.TagsLower = append([]string(nil), r.TagsLower...)
	if r.RateLimit != nil {
		rl := *r.RateLimit
		if r.RateLimit.Burst != nil {
			b := *r.RateLimit.Burst
			rl.Burst = &b
		}
		c.RateLimit = &rl
	}
	return &c
}

// Normalize enforces cross-field invariants in place, returning a
// human-readable note for each adjustment it made. Used when importing
// external profiles, where malformed fields are repaired rather than
// rejected.
func (r *Rule) Normalize() []string {
	var report []string

	if r.ID == "" {
		r.ID = uuid.NewString()
		report = append(report, "assigned missing rule id")
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		r.ID = uuid.NewString()
		report = append(report, "replaced malformed rule id")
	}

	if clean := validation.SanitizeLabel(r.Label); clean != r.Label {
		report = append(report, fmt.Sprintf("sanitized label %q to %q", r.Label, clean))
		r.Label = clean
	}

	// Missing enum fields default silently; unknown values get a note.
	if r.Protocol == "" {
		r.Protocol = ProtocolAny
	} else if !r.Protocol.Valid() {
		report = append(report, fmt.Sprintf("unknown protocol %q reset to any", r.Protocol))
		r.Protocol = ProtocolAny
	}
	if r.Chain == "" {
		r.Chain = ChainInput
	} else if !r.Chain.Valid() {
		report = append(report, fmt.Sprintf("unknown chain %q reset to input", r.Chain))
		r.Chain = ChainInput
	}
	if r.Action == "" {
		r.Action = ActionAccept
	} else if !r.Action.Valid() {
		report = append(report, fmt.Sprintf("unknown action %q reset to accept", r.Action))
		r.Action = ActionAccept
	}

	if !ProtocolSupportsPorts(r.Protocol) && len(r.Ports) > 0 {
		report = append(report, fmt.Sprintf("cleared %d port entries: protocol %s does not use ports", len(r.Ports), r.Protocol))
		r.Ports = nil
	}
	for _, p := range r.Ports {
		if p.Start == 0 || p.Start > p.End {
			report = append(report, fmt.Sprintf("dropped invalid port entry %s", p))
		}
	}
	kept := r.Ports[:0]
	for _, p := range r.Ports {
		if p.Start != 0 && p.Start <= p.End {
			kept = append(kept, p)
		}
	}
	r.Ports = kept

	if r.RejectType == "" {
		r.RejectType = RejectDefault
	}
	if r.Action != ActionReject && r.RejectType != RejectDefault {
		report = append(report, fmt.Sprintf("reject type %s cleared: action is %s", r.RejectType, r.Action))
		r.RejectType = RejectDefault
	}
	if r.Action == ActionReject && !RejectTypeValidFor(r.RejectType, r.Protocol) {
		report = append(report, fmt.Sprintf("reject type %s is not valid for protocol %s; using default", r.RejectType, r.Protocol))
		r.RejectType = RejectDefault
	}

	r.Sources = normalizeNetworks(r.Sources, "source", &report)
	r.Destinations = normalizeNetworks(r.Destinations, "destination", &report)

	// Interface on the wrong side of the chain is legal but inert;
	// flag it so import reports surface the mismatch.
	if ChainUsesInputInterface(r.Chain) && r.OutputInterface != "" {
		report = append(report, fmt.Sprintf("input rule carries output interface %q (ignored by the input chain)", r.OutputInterface))
	}
	if ChainUsesOutputInterface(r.Chain) && r.Interface != "" {
		report = append(report, fmt.Sprintf("output rule carries input interface %q (ignored by the output chain)", r.Interface))
	}

	if r.RateLimit != nil && r.RateLimit.Count == 0 {
		report = append(report, "removed rate limit with zero count")
		r.RateLimit = nil
	}
	if r.RateLimit != nil && !r.RateLimit.Unit.Valid() {
		report = append(report, fmt.Sprintf("rate limit unit %q reset to second", r.RateLimit.Unit))
		r.RateLimit.Unit = UnitSecond
	}
	if r.RateLimit != nil && r.RateLimit.Burst != nil && *r.RateLimit.Burst < r.RateLimit.Count {
		report = append(report, fmt.Sprintf("rate limit burst %d raised to count %d", *r.RateLimit.Burst, r.RateLimit.Count))
		*r.RateLimit.Burst = r.RateLimit.Count
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
		report = append(report, "assigned missing creation time")
	}

	r.RebuildCaches()
	return report
}

func normalizeNetworks(nets []string, kind string, report *[]string) []string {
	kept := nets[:0]
	for _, n := range nets {
		if err := validation.ValidateCIDR(n); err != nil {
			*report = append(*report, fmt.Sprintf("dropped invalid %s network %q", kind, n))
			continue
		}
		kept = append(kept, n)
	}
	return kept
}
