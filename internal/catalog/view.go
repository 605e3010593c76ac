package catalog

import (
	"context"
	"sync"
)

// UnitView keeps the most recent content page for the unit being shown.
type UnitView struct {
	contents *Contents
	query    Query

	mu     sync.RWMutex
	unitID int64
	page   *Page[Content]
	loads  int
}

func NewUnitView(contents *Contents, q Query) *UnitView {
	return &UnitView{contents: contents, query: q}
}

// RefreshUnit refetches the unit's content list and replaces the current page.
func (v *UnitView) RefreshUnit(ctx context.Context, unitID int64) error {
	page, err := v.contents.ListUnit(ctx, unitID, v.query)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.unitID = unitID
	v.page = page
	v.loads++
	v.mu.Unlock()
	return nil
}

// Current returns the page last loaded and the unit it belongs to.
func (v *UnitView) Current() (int64, *Page[Content]) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.unitID, v.page
}

func (v *UnitView) Loads() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loads
}

// Reset drops the cached page, e.g. after logout.
func (v *UnitView) Reset() {
	v.mu.Lock()
	v.unitID = 0
	v.page = nil
	v.mu.Unlock()
}
