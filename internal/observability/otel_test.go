package observability

import "testing"

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc , bad, =x, team=medi ")
	if len(got) != 2 || got["api-key"] != "abc" || got["team"] != "medi" {
		t.Fatalf("ParseHeaders: got=%v", got)
	}
	if ParseHeaders("  ") != nil {
		t.Fatalf("ParseHeaders blank: want nil")
	}
}

func TestClampRatio(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0.25: 0.25, 3: 1}
	for in, want := range cases {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v): want=%v got=%v", in, want, got)
		}
	}
}
