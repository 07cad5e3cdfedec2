package entitlement

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Unlimited is the sentinel stored for limits without an upper bound.
const Unlimited Limit = -1

const unlimitedText = "unlimited"

// Limit is a numeric capability limit (e.g. max_seats). Negative values
// other than Unlimited are rejected at load time.
type Limit int64

// Limits maps a limit name to its value.
type Limits map[string]Limit

// IsUnlimited reports whether the limit has no upper bound.
func (l Limit) IsUnlimited() bool { return l == Unlimited }

// Allows reports whether n units fit within the limit.
func (l Limit) Allows(n int64) bool {
	return l.IsUnlimited() || n <= int64(l)
}

func (l Limit) String() string {
	if l.IsUnlimited() {
		return unlimitedText
	}
	return strconv.FormatInt(int64(l), 10)
}

// MarshalJSON encodes Unlimited as the string "unlimited".
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.IsUnlimited() {
		return json.Marshal(unlimitedText)
	}
	return json.Marshal(int64(l))
}

// UnmarshalJSON accepts a non-negative integer or "unlimited".
func (l *Limit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return l.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("limit: expected integer or %q", unlimitedText)
	}
	return l.set(n)
}

// UnmarshalYAML accepts a non-negative integer or "unlimited".
func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("limit: line %d: expected scalar", node.Line)
	}
	return l.parse(node.Value)
}

func (l *Limit) parse(s string) error {
	if s == unlimitedText {
		*l = Unlimited
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("limit: %q is neither an integer nor %q", s, unlimitedText)
	}
	return l.set(n)
}

func (l *Limit) set(n int64) error {
	if n < 0 {
		return fmt.Errorf("limit: %d must be >= 0", n)
	}
	*l = Limit(n)
	return nil
}

// Clone returns an independent copy so cached decisions are never aliased.
func (ls Limits) Clone() Limits {
	if ls == nil {
		return nil
	}
	out := make(Limits, len(ls))
	for k, v := range ls {
		out[k] = v
	}
	return out
}
