package query

import "testing"

func TestNormalizeStripsStopWordsKeepsIdentifiers(t *testing.T) {
	got := Normalize("how does the getUserProfile function work")
	if got != "getUserProfile function work" {
		t.Errorf("Normalize() = %q", got)
	}
}

func TestNormalizeFallsBackWhenAllStopWords(t *testing.T) {
	got := Normalize("what is this")
	if got != "what is this" {
		t.Errorf("expected unchanged fallback, got %q", got)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize("   "); got != "   " {
		t.Errorf("Normalize(blank) = %q", got)
	}
}

func TestClassifyModeModificationTakesPriority(t *testing.T) {
	if got := ClassifyMode("explain how to fix the parser bug"); got != ModeModification {
		t.Errorf("ClassifyMode() = %q, want modification", got)
	}
}

func TestClassifyModeExploration(t *testing.T) {
	if got := ClassifyMode("how does the sync module work"); got != ModeExploration {
		t.Errorf("ClassifyMode() = %q, want exploration", got)
	}
}

func TestClassifyModeDefaultsToExploration(t *testing.T) {
	if got := ClassifyMode("xyzzy plugh"); got != ModeExploration {
		t.Errorf("ClassifyMode() = %q, want exploration default", got)
	}
}

func TestSuggestBudget(t *testing.T) {
	cases := []struct {
		length int
		want   int
	}{
		{10, 600},
		{150, 800},
		{300, 1200},
		{1000, 1500},
	}
	for _, c := range cases {
		if got := SuggestBudget(c.length); got != c.want {
			t.Errorf("SuggestBudget(%d) = %d, want %d", c.length, got, c.want)
		}
	}
}
