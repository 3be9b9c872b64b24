package suppress

import (
	"fmt"
	"strings"
)

// NullValue is substituted for a missing dimension value. It is treated as
// a distinct category, on equal footing with any published value.
const NullValue = "<null>"

// DefaultRedactionSentinel is substituted for the incidence of a redacted
// row when Config.RedactionSentinel is left empty.
const DefaultRedactionSentinel = "Redacted"

// Config holds the options recognized by the engine (component C7).
type Config struct {
	// Threshold is the minimum incidence for a cell to be anonymous.
	// Cells below it are primary-redacted. Must be >= 1.
	Threshold int `yaml:"threshold" json:"threshold"`

	// FirstOrderOnly, when true, skips latent-revelation propagation
	// entirely: the output is exactly the primary redaction set.
	FirstOrderOnly bool `yaml:"first_order_only" json:"first_order_only"`

	// NonSummableDimensions names dimensions whose totals are never
	// published; leaks through them are not considered during the scan.
	NonSummableDimensions []string `yaml:"non_summable_dimensions" json:"non_summable_dimensions"`

	// IncidenceColumn is the input column holding the count.
	IncidenceColumn string `yaml:"incidence_column" json:"incidence_column"`

	// RedactionSentinel replaces incidence in redacted rows on output.
	// Defaults to "Redacted".
	RedactionSentinel string `yaml:"redaction_sentinel" json:"redaction_sentinel"`

	// Dimensions is the full, ordered dimension set D. All other input
	// columns are passthrough and ignored by the engine.
	Dimensions []string `yaml:"dimensions" json:"dimensions"`
}

// normalized returns a copy of c with defaults applied.
func (c Config) normalized() Config {
	if strings.TrimSpace(c.RedactionSentinel) == "" {
		c.RedactionSentinel = DefaultRedactionSentinel
	}
	return c
}

// Validate checks the config for the conditions enumerated in §7 of the
// suppression spec (InvalidConfig).
func (c Config) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be >= 1, got %d", ErrInvalidConfig, c.Threshold)
	}
	if strings.TrimSpace(c.IncidenceColumn) == "" {
		return fmt.Errorf("%w: incidence_column is required", ErrInvalidConfig)
	}
	if len(c.Dimensions) == 0 {
		return fmt.Errorf("%w: dimensions must be non-empty", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Dimensions))
	for _, d := range c.Dimensions {
		d = strings.TrimSpace(d)
		if d == "" {
			return fmt.Errorf("%w: dimension name must not be blank", ErrInvalidConfig)
		}
		if seen[d] {
			return fmt.Errorf("%w: duplicate dimension %q", ErrInvalidConfig, d)
		}
		seen[d] = true
	}
	for _, n := range c.NonSummableDimensions {
		if !seen[n] {
			return fmt.Errorf("%w: non-summable dimension %q is not in dimensions", ErrInvalidConfig, n)
		}
	}
	return nil
}

// nonSummableSet returns NonSummableDimensions as a lookup set.
func (c Config) nonSummableSet() map[string]bool {
	out := make(map[string]bool, len(c.NonSummableDimensions))
	for _, d := range c.NonSummableDimensions {
		out[d] = true
	}
	return out
}

// summableDimensions returns Dimensions minus NonSummableDimensions, in
// the order they appear in Dimensions.
func (c Config) summableDimensions() []string {
	ns := c.nonSummableSet()
	out := make([]string, 0, len(c.Dimensions))
	for _, d := range c.Dimensions {
		if !ns[d] {
			out = append(out, d)
		}
	}
	return out
}
