package cleaner

import (
	"errors"
	"testing"
)

func TestFilterRowsRejectsInvertedWindow(t *testing.T) {
	start := period(5)
	end := period(2)

	_, err := FilterRows([]Row{panelRow(1, 0, 10, 1, 1)}, Filter{Start: &start, End: &end})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("start after end should fail with ErrInvalidParameter, got %v", err)
	}
}

func TestFilterRowsByItemAndWindow(t *testing.T) {
	rows := []Row{
		panelRow(1, 0, 10, 1, 1),
		panelRow(1, 1, 11, 1, 1),
		panelRow(1, 2, 12, 1, 1),
		panelRow(2, 1, 20, 1, 1),
	}

	start := period(1)
	end := period(2)
	got, err := FilterRows(rows, Filter{ItemIDs: []int64{1}, Start: &start, End: &end})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	for _, row := range got {
		if row.ItemID != 1 {
			t.Fatalf("item filter leaked item %d", row.ItemID)
		}
		if row.Datetime.Before(start) || row.Datetime.After(end) {
			t.Fatalf("window bounds are inclusive, got %v", row.Datetime)
		}
	}
}

func TestFilterRowsNoPredicates(t *testing.T) {
	rows := []Row{panelRow(1, 0, 10, 1, 1), panelRow(2, 0, 20, 1, 1)}

	got, err := FilterRows(rows, Filter{})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("empty filter should keep everything, got %d rows", len(got))
	}
}

func TestItems(t *testing.T) {
	rows := []Row{
		{ItemID: 2, Name: "Cannonball", Datetime: period(0)},
		{ItemID: 2, Name: "Cannonball", Datetime: period(1)},
		{ItemID: 561, Name: "Nature rune", Datetime: period(0)},
	}

	items := Items(rows)
	if len(items) != 2 {
		t.Fatalf("expected 2 distinct items, got %d", len(items))
	}
	if items[0].ID != 2 || items[0].Name != "Cannonball" || items[1].ID != 561 {
		t.Fatalf("unexpected items: %+v", items)
	}
}
