package session

import (
	"testing"

	"github.com/bij27/hohm.studio/internal/scoring"
)

func TestLedgerRemainderCarry(t *testing.T) {
	var l FormLedger
	if got := l.Add(scoring.Perfect, 0.4); got != 0 {
		t.Fatalf("first 0.4s add returned %d whole seconds", got)
	}
	if got := l.Add(scoring.Perfect, 0.4); got != 0 {
		t.Fatalf("second 0.4s add returned %d whole seconds", got)
	}
	if got := l.Add(scoring.Perfect, 0.4); got != 1 {
		t.Fatalf("third 0.4s add returned %d whole seconds, want 1", got)
	}
	if l.Seconds(scoring.Perfect) != 1 {
		t.Fatalf("perfect seconds = %d, want 1", l.Seconds(scoring.Perfect))
	}
	if l.Total() != 1 {
		t.Fatalf("total = %d, want 1", l.Total())
	}
}

func TestLedgerIgnoresNonPositive(t *testing.T) {
	var l FormLedger
	l.Add(scoring.Good, 0)
	l.Add(scoring.Good, -1)
	if l.Total() != 0 {
		t.Fatalf("total = %d after non-positive adds", l.Total())
	}
}

func TestLedgerGrade(t *testing.T) {
	var l FormLedger
	if l.Grade() != 0 {
		t.Fatalf("empty ledger grade = %v, want 0", l.Grade())
	}
	l.Add(scoring.Perfect, 10)
	l.Add(scoring.NeedsWork, 10)
	if got := l.Grade(); got != 70 {
		t.Fatalf("grade = %v, want 70", got)
	}

	var all FormLedger
	all.Add(scoring.Perfect, 30)
	if got := all.Grade(); got != 100 {
		t.Fatalf("all-perfect grade = %v, want 100", got)
	}
}

func TestLetterGrade(t *testing.T) {
	cases := []struct {
		grade float64
		want  string
	}{
		{100, "A+"}, {95, "A+"}, {94.9, "A"}, {90, "A"},
		{85, "A-"}, {80, "B+"}, {75, "B"}, {70, "B-"},
		{65, "C+"}, {60, "C"}, {59.9, "F"}, {0, "F"},
	}
	for _, c := range cases {
		if got := LetterGrade(c.grade); got != c.want {
			t.Errorf("LetterGrade(%v) = %q, want %q", c.grade, got, c.want)
		}
	}
}
