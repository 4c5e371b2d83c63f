package updates

import (
	"slices"

	"github.com/apkupdater/apkupdaterd/api"
)

// Collection is an ordered list of updates keyed by identifier.
//
// It isn't safe for concurrent use, the Manager owning it serializes access.
type Collection struct {
	items []api.AppUpdate
}

// NewCollection returns a collection holding a copy of items.
func NewCollection(items []api.AppUpdate) *Collection {
	return &Collection{items: slices.Clone(items)}
}

// Items returns a copy of the updates, in order.
func (c *Collection) Items() []api.AppUpdate {
	if c == nil {
		return []api.AppUpdate{}
	}

	return slices.Clone(c.items)
}

// Len returns the number of updates.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}

	return len(c.items)
}

func (c *Collection) index(id int64) int {
	if c == nil {
		return -1
	}

	return slices.IndexFunc(c.items, func(u api.AppUpdate) bool {
		return u.ID == id
	})
}

// Get returns the update with the given identifier.
func (c *Collection) Get(id int64) (api.AppUpdate, bool) {
	idx := c.index(id)
	if idx < 0 {
		return api.AppUpdate{}, false
	}

	return c.items[idx], true
}

// SetProgress records the download progress of an update, clamped to 0-100.
func (c *Collection) SetProgress(id int64, progress int) bool {
	idx := c.index(id)
	if idx < 0 {
		return false
	}

	c.items[idx].Progress = min(100, max(0, progress))

	return true
}

// SetInstalling flags an update as being installed or not.
func (c *Collection) SetInstalling(id int64, installing bool) bool {
	idx := c.index(id)
	if idx < 0 {
		return false
	}

	c.items[idx].IsInstalling = installing
	if !installing {
		c.items[idx].Progress = 0
	}

	return true
}

// Append adds an update at the end of the list.
func (c *Collection) Append(update api.AppUpdate) {
	c.items = append(c.items, update)
}

// Remove drops an update, keeping the order of the others.
func (c *Collection) Remove(id int64) bool {
	idx := c.index(id)
	if idx < 0 {
		return false
	}

	c.items = slices.Delete(c.items, idx, idx+1)

	return true
}

// RemovePackage drops every update for the package, returning how many were removed.
func (c *Collection) RemovePackage(packageName string) int {
	before := len(c.items)

	c.items = slices.DeleteFunc(c.items, func(u api.AppUpdate) bool {
		return u.PackageName == packageName
	})

	return before - len(c.items)
}

// CarryForward copies the progress and installing flags of updates also present in previous.
func (c *Collection) CarryForward(previous *Collection) {
	if previous == nil {
		return
	}

	for i, item := range c.items {
		old, ok := previous.Get(item.ID)
		if !ok {
			continue
		}

		c.items[i].Progress = old.Progress
		c.items[i].IsInstalling = old.IsInstalling
	}
}
