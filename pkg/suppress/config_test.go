package suppress

import "testing"

func TestConfigValidate(t *testing.T) {
	base := Config{
		Threshold:       11,
		IncidenceColumn: "count",
		Dimensions:      []string{"age", "sex", "vet", "zip"},
	}

	cases := []struct {
		name    string
		mutate  func(c Config) Config
		wantErr bool
	}{
		{"valid", func(c Config) Config { return c }, false},
		{"zero threshold", func(c Config) Config { c.Threshold = 0; return c }, true},
		{"negative threshold", func(c Config) Config { c.Threshold = -1; return c }, true},
		{"empty incidence column", func(c Config) Config { c.IncidenceColumn = ""; return c }, true},
		{"empty dimensions", func(c Config) Config { c.Dimensions = nil; return c }, true},
		{"blank dimension", func(c Config) Config { c.Dimensions = []string{"age", "  "}; return c }, true},
		{"duplicate dimension", func(c Config) Config { c.Dimensions = []string{"age", "age"}; return c }, true},
		{
			"unknown non-summable dim",
			func(c Config) Config { c.NonSummableDimensions = []string{"month"}; return c },
			true,
		},
		{
			"known non-summable dim",
			func(c Config) Config { c.NonSummableDimensions = []string{"zip"}; return c },
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.mutate(base).Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigNormalizedDefaultsSentinel(t *testing.T) {
	c := Config{Threshold: 1, IncidenceColumn: "count", Dimensions: []string{"a"}}
	n := c.normalized()
	if n.RedactionSentinel != DefaultRedactionSentinel {
		t.Fatalf("expected default sentinel %q, got %q", DefaultRedactionSentinel, n.RedactionSentinel)
	}

	c.RedactionSentinel = "Masked"
	n = c.normalized()
	if n.RedactionSentinel != "Masked" {
		t.Fatalf("expected custom sentinel preserved, got %q", n.RedactionSentinel)
	}
}
