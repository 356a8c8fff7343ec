package correlation

import "testing"

func TestGroupOpenCount_CountsOnlyWithinSameGroup(t *testing.T) {
	tr := NewTracker(DefaultGroups())
	tr.SetOpenSymbols([]string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})

	if count, _ := tr.GroupOpenCount("ETHUSDT"); count != 2 {
		t.Fatalf("expected 2 open majors, got %d", count)
	}
	if count, _ := tr.GroupOpenCount("SOLUSDT"); count != 1 {
		t.Fatalf("expected 1 open layer1, got %d", count)
	}
}

func TestGroupOpenCount_UnclassifiedSymbolIsNeverCapped(t *testing.T) {
	tr := NewTracker(DefaultGroups())
	tr.SetOpenSymbols([]string{"BTCUSDT", "ETHUSDT"})

	count, _ := tr.GroupOpenCount("SOMECOINUSDT")
	if count != 0 {
		t.Fatalf("expected unclassified symbol to report 0, got %d", count)
	}
}
