package suppress

import (
	"reflect"
	"testing"
)

func TestEnumerateAxesOrderAndShape(t *testing.T) {
	dims := []string{"zip", "age", "sex"}
	axes := EnumerateAxes(dims, map[string]bool{})

	// 3 dims -> 2^3-1 = 7 non-empty subsets, each contributing (3-|P|) scan
	// dims (summable minus partition).
	wantCount := 0
	for size := 1; size <= 3; size++ {
		wantCount += choose(3, size) * (3 - size)
	}
	if len(axes) != wantCount {
		t.Fatalf("expected %d axes, got %d", wantCount, len(axes))
	}

	for i := 1; i < len(axes); i++ {
		if len(axes[i].Partition) < len(axes[i-1].Partition) {
			t.Fatalf("axes not ordered by partition size ascending at index %d", i)
		}
	}

	for _, ax := range axes {
		for _, p := range ax.Partition {
			if p == ax.ScanDim {
				t.Fatalf("scan dim %q also appears in partition %v", ax.ScanDim, ax.Partition)
			}
		}
	}
}

func TestEnumerateAxesExcludesNonSummableScanDim(t *testing.T) {
	dims := []string{"age", "sex", "month"}
	axes := EnumerateAxes(dims, map[string]bool{"month": true})
	for _, ax := range axes {
		if ax.ScanDim == "month" {
			t.Fatalf("non-summable dimension %q used as scan dim", ax.ScanDim)
		}
	}
}

func TestLexLess(t *testing.T) {
	if !lexLess([]string{"a"}, []string{"b"}) {
		t.Fatalf("expected [a] < [b]")
	}
	if lexLess([]string{"b"}, []string{"a"}) {
		t.Fatalf("expected [b] not< [a]")
	}
	if lexLess([]string{"a", "b"}, []string{"a", "b"}) {
		t.Fatalf("expected equal slices not<")
	}
}

func TestAxesDeterministic(t *testing.T) {
	dims := []string{"zip", "age", "sex", "vet"}
	a := EnumerateAxes(dims, map[string]bool{})
	b := EnumerateAxes(dims, map[string]bool{})
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("EnumerateAxes is not deterministic across calls")
	}
}

func choose(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	num, den := 1, 1
	for i := 0; i < k; i++ {
		num *= n - i
		den *= i + 1
	}
	return num / den
}
