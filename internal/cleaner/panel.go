package cleaner

import (
	"fmt"
	"time"
)

// Filter narrows a cleaned panel for presentation. Predicates are optional
// and applied in a fixed order: item-id set, start date, end date. Bounds are
// inclusive.
type Filter struct {
	ItemIDs []int64
	Start   *time.Time
	End     *time.Time
}

// FilterRows applies the filter to a panel. A start date after the end date
// is rejected before any work is done.
func FilterRows(rows []Row, f Filter) ([]Row, error) {
	if f.Start != nil && f.End != nil && f.Start.After(*f.End) {
		return nil, fmt.Errorf("%w: start date must be before end date", ErrInvalidParameter)
	}

	var ids map[int64]struct{}
	if len(f.ItemIDs) > 0 {
		ids = make(map[int64]struct{}, len(f.ItemIDs))
		for _, id := range f.ItemIDs {
			ids[id] = struct{}{}
		}
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if ids != nil {
			if _, ok := ids[row.ItemID]; !ok {
				continue
			}
		}
		if f.Start != nil && row.Datetime.Before(*f.Start) {
			continue
		}
		if f.End != nil && row.Datetime.After(*f.End) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// ItemRef identifies one item appearing in a panel.
type ItemRef struct {
	ID   int64
	Name string
}

// Items returns the distinct items present in a panel, in panel order.
func Items(rows []Row) []ItemRef {
	var out []ItemRef
	seen := make(map[int64]struct{})
	for _, row := range rows {
		if _, ok := seen[row.ItemID]; ok {
			continue
		}
		seen[row.ItemID] = struct{}{}
		out = append(out, ItemRef{ID: row.ItemID, Name: row.Name})
	}
	return out
}
