// Package nftgen turns a FirewallRuleset into the two artifacts the
// kernel helper consumes: the nftables JSON wire document and the nft
// text rendering used for preview and diffing. Both outputs are
// byte-stable for a given ruleset value.
package nftgen

import "encoding/json"

// Every node below is a struct rather than a map so that encoding/json
// emits fields in declaration order and the output stays byte-stable.

// Document is the top-level wire format: {"nftables": [...]}.
type Document struct {
	Nftables []Instruction `json:"nftables"`
}

// Instruction is one element of the nftables array.
type Instruction struct {
	Add    *Object `json:"add,omitempty"`
	Delete *Object `json:"delete,omitempty"`
	Flush  *Object `json:"flush,omitempty"`
	List   *Object `json:"list,omitempty"`
}

// Object is the payload of an add/flush/list instruction.
type Object struct {
	Table *TableSpec `json:"table,omitempty"`
	Chain *ChainSpec `json:"chain,omitempty"`
	Rule  *RuleSpec  `json:"rule,omitempty"`
}

type TableSpec struct {
	Family string `json:"family"`
	Name   string `json:"name"`
}

type ChainSpec struct {
	Family string `json:"family"`
	Table  string `json:"table"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Hook   string `json:"hook,omitempty"`
	Prio   *int   `json:"prio,omitempty"`
	Policy string `json:"policy,omitempty"`
}

type RuleSpec struct {
	Family  string `json:"family"`
	Table   string `json:"table"`
	Chain   string `json:"chain"`
	Expr    []Expr `json:"expr"`
	Comment string `json:"comment,omitempty"`
}

// Expr is one expression in a rule. Exactly one field is set.
type Expr struct {
	Match   *MatchExpr  `json:"match,omitempty"`
	Limit   *LimitExpr  `json:"limit,omitempty"`
	Log     *LogExpr    `json:"log,omitempty"`
	CtCount *CtCount    `json:"ct count,omitempty"`
	Counter *Null       `json:"counter,omitempty"`
	Accept  *Null       `json:"accept,omitempty"`
	Drop    *Null       `json:"drop,omitempty"`
	Reject  *RejectExpr `json:"reject,omitempty"`
}

// Null marshals as JSON null; the wire format uses it for bare
// verdicts and counters ({"accept": null}).
type Null struct{}

func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// UnmarshalJSON decodes an expression by key so that null-valued
// verdicts like {"drop": null} survive: unmarshalling null into a
// pointer field would otherwise leave it nil and indistinguishable
// from an absent key.
func (e *Expr) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, val := range raw {
		switch key {
		case "match":
			e.Match = &MatchExpr{}
			if err := json.Unmarshal(val, e.Match); err != nil {
				return err
			}
		case "limit":
			e.Limit = &LimitExpr{}
			if err := json.Unmarshal(val, e.Limit); err != nil {
				return err
			}
		case "log":
			e.Log = &LogExpr{}
			if err := json.Unmarshal(val, e.Log); err != nil {
				return err
			}
		case "ct count":
			e.CtCount = &CtCount{}
			if err := json.Unmarshal(val, e.CtCount); err != nil {
				return err
			}
		case "counter":
			e.Counter = &Null{}
		case "accept":
			e.Accept = &Null{}
		case "drop":
			e.Drop = &Null{}
		case "reject":
			e.Reject = &RejectExpr{}
			if err := e.Reject.UnmarshalJSON(val); err != nil {
				return err
			}
		}
	}
	return nil
}

type MatchExpr struct {
	Left  Operand `json:"left"`
	Op    string  `json:"op"`
	Right any     `json:"right"`
}

// Operand is the left side of a match. Exactly one field is set.
type Operand struct {
	Meta    *MetaExpr    `json:"meta,omitempty"`
	Payload *PayloadExpr `json:"payload,omitempty"`
	Ct      *CtExpr      `json:"ct,omitempty"`
	Fib     *FibExpr     `json:"fib,omitempty"`
}

type MetaExpr struct {
	Key string `json:"key"`
}

type PayloadExpr struct {
	Protocol string `json:"protocol"`
	Field    string `json:"field"`
}

type CtExpr struct {
	Key string `json:"key"`
}

type FibExpr struct {
	Flags  []string `json:"flags"`
	Result string   `json:"result"`
}

type LimitExpr struct {
	Rate  uint32 `json:"rate"`
	Per   string `json:"per"`
	Burst uint32 `json:"burst,omitempty"`
}

type LogExpr struct {
	Prefix string `json:"prefix"`
	Level  string `json:"level,omitempty"`
}

type CtCount struct {
	Val uint32 `json:"val"`
}

// RejectExpr marshals as null for the protocol-appropriate default
// reject and as {"type": ..., "expr": ...} otherwise.
type RejectExpr struct {
	Type string `json:"type,omitempty"`
	Expr string `json:"expr,omitempty"`
}

func (r RejectExpr) MarshalJSON() ([]byte, error) {
	if r.Type == "" && r.Expr == "" {
		return []byte("null"), nil
	}
	type alias RejectExpr
	return json.Marshal(alias(r))
}

func (r *RejectExpr) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = RejectExpr{}
		return nil
	}
	type alias RejectExpr
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = RejectExpr(a)
	return nil
}

// RangeVal is an inclusive port range operand: {"range":[a,b]}.
type RangeVal struct {
	Range [2]uint16 `json:"range"`
}

// SetVal is an anonymous set operand: {"set":[...]}.
type SetVal struct {
	Set []any `json:"set"`
}
