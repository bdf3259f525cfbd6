package registry_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/atlas-desktop/portfolio-replay/internal/data"
	"github.com/atlas-desktop/portfolio-replay/internal/fixtures"
	"github.com/atlas-desktop/portfolio-replay/internal/registry"
	"github.com/atlas-desktop/portfolio-replay/internal/workers"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"go.uber.org/zap"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	pool := workers.NewPool(zap.NewNop(), workers.DefaultPoolConfig("parse"))
	pool.Start()
	t.Cleanup(func() { pool.Stop() })
	return registry.New(zap.NewNop(), pool, nil)
}

func TestAddPartialFailure(t *testing.T) {
	reg := newRegistry(t)

	bad := fixtures.NewResult(5)
	bad.Cash = bad.Cash[:3]

	files := []types.RawFile{
		fixtures.NewResult(5).File("a.json"),
		bad.File("bad.json"),
		{Name: "garbage.json", Data: []byte("{")},
		fixtures.NewResult(9).File("c_consolidated_json.json"),
	}

	added, failures := reg.Add(context.Background(), files)
	if len(added) != 2 {
		t.Fatalf("Expected 2 datasets, got %d", len(added))
	}
	if len(failures) != 2 {
		t.Fatalf("Expected 2 failures, got %d", len(failures))
	}
	if failures[0].Name != "bad.json" || failures[1].Name != "garbage.json" {
		t.Errorf("Unexpected failure order: %v", failures)
	}

	if added[0].DisplayName != "a" || added[1].DisplayName != "c" {
		t.Errorf("Unexpected display names: %s, %s", added[0].DisplayName, added[1].DisplayName)
	}
	if reg.Len() != 2 {
		t.Errorf("Expected registry length 2, got %d", reg.Len())
	}
	if reg.MaxIndex() != 8 {
		t.Errorf("Expected max index 8, got %d", reg.MaxIndex())
	}
	if reg.SelectedID() != added[0].ID {
		t.Errorf("Expected first dataset to be selected")
	}
}

func TestAddAllFailuresLeavesEmptyState(t *testing.T) {
	reg := newRegistry(t)

	added, failures := reg.Add(context.Background(), []types.RawFile{{Name: "x.json", Data: []byte("[]")}})
	if len(added) != 0 || len(failures) != 1 {
		t.Fatalf("Expected only a failure, got %d added, %d failures", len(added), len(failures))
	}
	if reg.Len() != 0 || reg.MaxIndex() != 0 || reg.Selected() != nil {
		t.Error("Expected empty registry")
	}
}

func TestDuplicateFileNamesGetUniqueIDs(t *testing.T) {
	reg := newRegistry(t)

	f := fixtures.NewResult(3).File("same.json")
	added, _ := reg.Add(context.Background(), []types.RawFile{f, f, f})
	if len(added) != 3 {
		t.Fatalf("Expected 3 datasets, got %d", len(added))
	}

	seen := make(map[string]bool)
	for _, ds := range added {
		if seen[ds.ID] {
			t.Fatalf("Duplicate id %s", ds.ID)
		}
		seen[ds.ID] = true
	}
}

func TestColorAssignmentDistinct(t *testing.T) {
	reg := newRegistry(t)

	files := make([]types.RawFile, 3)
	for i := range files {
		files[i] = fixtures.NewResult(4).File(fmt.Sprintf("f%d.json", i))
	}

	added, _ := reg.Add(context.Background(), files)
	palette := registry.DefaultPalette()
	for i, ds := range added {
		if ds.Color != palette[i] {
			t.Errorf("dataset %d: expected %s, got %s", i, palette[i], ds.Color)
		}
	}
}

func TestColorAssignmentNinthFile(t *testing.T) {
	reg := newRegistry(t)
	palette := registry.DefaultPalette()

	files := make([]types.RawFile, len(palette))
	for i := range files {
		files[i] = fixtures.NewResult(4).File(fmt.Sprintf("f%d.json", i))
	}
	reg.Add(context.Background(), files)

	// Recolor the first dataset so palette[0] is unused and palette[1] doubled
	first := reg.List()[0]
	reg.UpdateColor(first.ID, palette[1])

	if got := reg.AssignColor(reg.List()); got != palette[0] {
		t.Errorf("Expected least used color %s, got %s", palette[0], got)
	}

	// Restore: all colors used once, the 9th load takes the first palette entry
	reg.UpdateColor(first.ID, palette[0])
	added, failures := reg.Add(context.Background(), []types.RawFile{fixtures.NewResult(4).File("ninth.json")})
	if len(failures) != 0 || len(added) != 1 {
		t.Fatalf("Unexpected load result")
	}
	if added[0].Color != palette[0] {
		t.Errorf("Expected %s for ninth dataset, got %s", palette[0], added[0].Color)
	}
}

func TestRemoveReassignsSelection(t *testing.T) {
	reg := newRegistry(t)

	added, _ := reg.Add(context.Background(), []types.RawFile{
		fixtures.NewResult(3).File("a.json"),
		fixtures.NewResult(3).File("b.json"),
		fixtures.NewResult(3).File("c.json"),
	})

	if !reg.Select(added[1].ID) {
		t.Fatal("Select failed")
	}
	if !reg.Remove(added[1].ID) {
		t.Fatal("Remove failed")
	}
	if reg.SelectedID() != added[0].ID {
		t.Errorf("Expected selection to move to first remaining dataset")
	}

	reg.Remove(added[0].ID)
	reg.Remove(added[2].ID)
	if reg.SelectedID() != "" || reg.Selected() != nil {
		t.Error("Expected no selection after removing everything")
	}
	if reg.Remove("unknown") {
		t.Error("Removing an unknown id should report false")
	}
}

func TestUpdateColorKeepsSnapshots(t *testing.T) {
	reg := newRegistry(t)
	added, _ := reg.Add(context.Background(), []types.RawFile{fixtures.NewResult(3).File("a.json")})

	snapshot := reg.List()
	red := types.RGBColor{R: 255}
	if !reg.UpdateColor(added[0].ID, red) {
		t.Fatal("UpdateColor failed")
	}

	if snapshot[0].Color == red {
		t.Error("Earlier snapshot should not observe the color change")
	}
	if ds, _ := reg.Get(added[0].ID); ds.Color != red {
		t.Error("Registry should hold the new color")
	}
}

func TestPnLRange(t *testing.T) {
	a := fixtures.NewResult(5).WithPnL(1, -4, 2, 9, 3).Dataset("a", types.RGBColor{})
	b := fixtures.NewResult(3).WithPnL(0, 5, -1).Dataset("b", types.RGBColor{})

	lo, hi, ok := registry.PnLRange([]*types.Dataset{a, b}, 2, 3)
	if !ok || lo != -1 || hi != 9 {
		t.Errorf("PnLRange = (%v, %v, %v), want (-1, 9, true)", lo, hi, ok)
	}

	if _, _, ok := registry.PnLRange(nil, 0, 10); ok {
		t.Error("Expected no range for empty input")
	}
}

func TestAddParsesSequentiallyWithoutPool(t *testing.T) {
	reg := registry.New(zap.NewNop(), nil, nil)
	added, failures := reg.Add(context.Background(), []types.RawFile{fixtures.NewResult(2).File(data.DefaultFileName)})
	if len(added) != 1 || len(failures) != 0 {
		t.Fatalf("Expected one dataset, got %d (%v)", len(added), failures)
	}
	if added[0].DisplayName != "Ⲗ" {
		t.Errorf("Unexpected display name %q", added[0].DisplayName)
	}
}
