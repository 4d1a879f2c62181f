// Package rules defines the firewall rule model: protocols, actions,
// chains, port entries, rate limits, and the Rule and FirewallRuleset
// types that every other layer operates on.
package rules

import (
	"encoding/json"
	"fmt"

	"grimm.is/warden/internal/errors"
)

// Protocol selects which L4 (or ICMP family) traffic a rule matches.
type Protocol string

const (
	ProtocolAny      Protocol = "any"
	ProtocolTCP      Protocol = "tcp"
	ProtocolUDP      Protocol = "udp"
	ProtocolTCPUDP   Protocol = "tcp+udp"
	ProtocolICMP     Protocol = "icmp"
	ProtocolICMPv6   Protocol = "icmpv6"
	ProtocolICMPBoth Protocol = "icmp-both"
)

// Protocols lists every protocol variant, in display order.
var Protocols = []Protocol{
	ProtocolAny, ProtocolTCP, ProtocolUDP, ProtocolTCPUDP,
	ProtocolICMP, ProtocolICMPv6, ProtocolICMPBoth,
}

// Valid reports whether p is a known protocol variant.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolAny, ProtocolTCP, ProtocolUDP, ProtocolTCPUDP,
		ProtocolICMP, ProtocolICMPv6, ProtocolICMPBoth:
		return true
	}
	return false
}

// Display returns the human-readable name shown in rule listings.
func (p Protocol) Display() string {
	switch p {
	case ProtocolAny:
		return "Any"
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	case ProtocolTCPUDP:
		return "TCP+UDP"
	case ProtocolICMP:
		return "ICMP"
	case ProtocolICMPv6:
		return "ICMPv6"
	case ProtocolICMPBoth:
		return "ICMP (v4+v6)"
	}
	return string(p)
}

func (p *Protocol) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := Protocol(s)
	if !v.Valid() {
		return errors.Errorf(errors.KindValidation, "unknown protocol %q", s)
	}
	*p = v
	return nil
}

// Chain is the netfilter hook direction a rule attaches to.
type Chain string

const (
	ChainInput  Chain = "input"
	ChainOutput Chain = "output"
)

// Chains lists every chain variant.
var Chains = []Chain{ChainInput, ChainOutput}

func (c Chain) Valid() bool {
	return c == ChainInput || c == ChainOutput
}

func (c *Chain) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := Chain(s)
	if v == "" {
		v = ChainInput
	}
	if !v.Valid() {
		return errors.Errorf(errors.KindValidation, "unknown chain %q", s)
	}
	*c = v
	return nil
}

// Action is the verdict applied to matching packets.
type Action string

const (
	ActionAccept Action = "accept"
	ActionDrop   Action = "drop"
	ActionReject Action = "reject"
)

// Actions lists every action variant.
var Actions = []Action{ActionAccept, ActionDrop, ActionReject}

func (a Action) Valid() bool {
	return a == ActionAccept || a == ActionDrop || a == ActionReject
}

// Display returns the capitalized verdict name for rule listings.
func (a Action) Display() string {
	switch a {
	case ActionAccept:
		return "Accept"
	case ActionDrop:
		return "Drop"
	case ActionReject:
		return "Reject"
	}
	return string(a)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := Action(s)
	if v == "" {
		v = ActionAccept
	}
	if !v.Valid() {
		return errors.Errorf(errors.KindValidation, "unknown action %q", s)
	}
	*a = v
	return nil
}

// RejectType selects the ICMP error sent for reject verdicts.
type RejectType string

const (
	RejectDefault         RejectType = "default"
	RejectPortUnreachable RejectType = "port-unreachable"
	RejectHostUnreachable RejectType = "host-unreachable"
	RejectAdminProhibited RejectType = "admin-prohibited"
	RejectTCPReset        RejectType = "tcp-reset"
)

// RejectTypes lists every reject type variant.
var RejectTypes = []RejectType{
	RejectDefault, RejectPortUnreachable, RejectHostUnreachable,
	RejectAdminProhibited, RejectTCPReset,
}

func (r RejectType) Valid() bool {
	switch r {
	case RejectDefault, RejectPortUnreachable, RejectHostUnreachable,
		RejectAdminProhibited, RejectTCPReset:
		return true
	}
	return false
}

func (r *RejectType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := RejectType(s)
	if v == "" {
		v = RejectDefault
	}
	if !v.Valid() {
		return errors.Errorf(errors.KindValidation, "unknown reject type %q", s)
	}
	*r = v
	return nil
}

// TimeUnit is the denominator of a rate limit.
type TimeUnit string

const (
	UnitSecond TimeUnit = "second"
	UnitMinute TimeUnit = "minute"
	UnitHour   TimeUnit = "hour"
	UnitDay    TimeUnit = "day"
)

// TimeUnits lists every time unit variant.
var TimeUnits = []TimeUnit{UnitSecond, UnitMinute, UnitHour, UnitDay}

func (u TimeUnit) Valid() bool {
	return u == UnitSecond || u == UnitMinute || u == UnitHour || u == UnitDay
}

func (u *TimeUnit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := TimeUnit(s)
	if !v.Valid() {
		return errors.Errorf(errors.KindValidation, "unknown time unit %q", s)
	}
	*u = v
	return nil
}

// EgressProfile controls the output chain policy.
type EgressProfile string

const (
	// EgressDesktop allows all outbound traffic (output policy accept).
	EgressDesktop EgressProfile = "desktop"
	// EgressServer denies outbound by default and requires explicit
	// output rules (output policy drop).
	EgressServer EgressProfile = "server"
)

func (e EgressProfile) Valid() bool {
	return e == EgressDesktop || e == EgressServer
}

func (e *EgressProfile) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := EgressProfile(s)
	if v == "" {
		v = EgressDesktop
	}
	if !v.Valid() {
		return errors.Errorf(errors.KindValidation, "unknown egress profile %q", s)
	}
	*e = v
	return nil
}

// PortEntry is a single port or an inclusive port range. Single ports
// serialize as a bare number, ranges as {"start": a, "end": b}.
type PortEntry struct {
	Start uint16
	End   uint16
}

// SinglePort returns an entry matching exactly one port.
func SinglePort(p uint16) PortEntry {
	return PortEntry{Start: p, End: p}
}

// PortRange returns an entry matching the inclusive range [start, end].
func PortRange(start, end uint16) PortEntry {
	return PortEntry{Start: start, End: end}
}

// IsRange reports whether the entry covers more than one port.
func (p PortEntry) IsRange() bool {
	return p.Start != p.End
}

// String renders the entry as "80" or "8000-8080".
func (p PortEntry) String() string {
	if p.IsRange() {
		return fmt.Sprintf("%d-%d", p.Start, p.End)
	}
	return fmt.Sprintf("%d", p.Start)
}

func (p PortEntry) MarshalJSON() ([]byte, error) {
	if !p.IsRange() {
		return json.Marshal(p.Start)
	}
	return json.Marshal(struct {
		Start uint16 `json:"start"`
		End   uint16 `json:"end"`
	}{p.Start, p.End})
}

func (p *PortEntry) UnmarshalJSON(data []byte) error {
	var single uint16
	if err := json.Unmarshal(data, &single); err == nil {
		p.Start, p.End = single, single
		return nil
	}
	var r struct {
		Start uint16 `json:"start"`
		End   uint16 `json:"end"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return errors.Wrap(err, errors.KindValidation, "invalid port entry")
	}
	if r.Start == 0 || r.End == 0 || r.Start > r.End {
		return errors.Errorf(errors.KindValidation, "invalid port range %d-%d", r.Start, r.End)
	}
	p.Start, p.End = r.Start, r.End
	return nil
}

// RateLimit caps how often a rule may match.
type RateLimit struct {
	Count uint32   `json:"count"`
	Unit  TimeUnit `json:"unit"`
	Burst *uint32  `json:"burst,omitempty"`
}

// String renders the limit as "10/minute" or "10/minute burst 30".
func (r RateLimit) String() string {
	if r.Burst != nil {
		return fmt.Sprintf("%d/%s burst %d", r.Count, r.Unit, *r.Burst)
	}
	return fmt.Sprintf("%d/%s", r.Count, r.Unit)
}
