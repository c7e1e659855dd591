package api

import "testing"

func TestSortRunsNewestFirst(t *testing.T) {
	runs := []Run{
		{ID: 1, CreatedAt: "2026-03-01T10:00:00.000Z"},
		{ID: 3, CreatedAt: "2026-03-01T12:00:00.000Z"},
		{ID: 2, CreatedAt: "2026-03-01T12:00:00.000Z"},
	}

	sorted := SortRunsNewestFirst(runs)
	if len(sorted) != 3 {
		t.Fatalf("len = %d, want 3", len(sorted))
	}
	if sorted[0].ID != 3 || sorted[1].ID != 2 || sorted[2].ID != 1 {
		t.Fatalf("order = %d,%d,%d, want 3,2,1", sorted[0].ID, sorted[1].ID, sorted[2].ID)
	}
	if runs[0].ID != 1 {
		t.Fatal("input slice was mutated")
	}
}
