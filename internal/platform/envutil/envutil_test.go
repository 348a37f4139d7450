package envutil

import (
	"testing"
	"time"
)

func TestTypedLookups(t *testing.T) {
	t.Setenv("MEDI_TEST_STR", "  medi ")
	t.Setenv("MEDI_TEST_INT", "12")
	t.Setenv("MEDI_TEST_BAD_INT", "twelve")
	t.Setenv("MEDI_TEST_FLOAT", "0.55")
	t.Setenv("MEDI_TEST_BOOL", "off")
	t.Setenv("MEDI_TEST_SECS", "30")
	t.Setenv("MEDI_TEST_LIST", "a, ,b")

	if got := String("MEDI_TEST_STR", "x"); got != "medi" {
		t.Fatalf("String: want=medi got=%q", got)
	}
	if got := String("MEDI_TEST_MISSING", "x"); got != "x" {
		t.Fatalf("String default: want=x got=%q", got)
	}
	if got := Int("MEDI_TEST_INT", 1); got != 12 {
		t.Fatalf("Int: want=12 got=%d", got)
	}
	if got := Int("MEDI_TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("Int invalid: want=7 got=%d", got)
	}
	if got := Float("MEDI_TEST_FLOAT", 0); got != 0.55 {
		t.Fatalf("Float: want=0.55 got=%v", got)
	}
	if got := Bool("MEDI_TEST_BOOL", true); got {
		t.Fatalf("Bool: want=false got=true")
	}
	if got := Bool("MEDI_TEST_MISSING", true); !got {
		t.Fatalf("Bool default: want=true got=false")
	}
	if got := Seconds("MEDI_TEST_SECS", time.Second); got != 30*time.Second {
		t.Fatalf("Seconds: want=30s got=%s", got)
	}
	got := List("MEDI_TEST_LIST", nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("List: want=[a b] got=%v", got)
	}
}
