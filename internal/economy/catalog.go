package economy

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Catalog holds the shop items loaded from the catalog file. Immutable
// after load.
type Catalog struct {
	items map[string]ShopItem
}

type catalogFile struct {
	Items []ShopItem `yaml:"items"`
}

// LoadCatalog reads and validates the YAML shop catalog at path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates raw YAML catalog data.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	items := make(map[string]ShopItem, len(file.Items))
	for _, item := range file.Items {
		if item.ID == "" {
			return nil, fmt.Errorf("catalog item with empty id")
		}
		if _, dup := items[item.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog item id %s", item.ID)
		}
		if item.PriceGems <= 0 {
			return nil, fmt.Errorf("item %s: price must be positive, got %d", item.ID, item.PriceGems)
		}
		if item.Boost != nil {
			if item.Boost.Multiplier <= 1 {
				return nil, fmt.Errorf("item %s: boost multiplier must exceed 1, got %v", item.ID, item.Boost.Multiplier)
			}
			if item.Boost.DurationMinutes <= 0 {
				return nil, fmt.Errorf("item %s: boost duration must be positive, got %d", item.ID, item.Boost.DurationMinutes)
			}
		}
		items[item.ID] = item
	}

	return &Catalog{items: items}, nil
}

// Item returns a catalog entry by id.
func (c *Catalog) Item(id string) (ShopItem, bool) {
	item, ok := c.items[id]
	return item, ok
}

// Items returns all entries sorted by sort order, then id.
func (c *Catalog) Items() []ShopItem {
	items := make([]ShopItem, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].SortOrder != items[j].SortOrder {
			return items[i].SortOrder < items[j].SortOrder
		}
		return items[i].ID < items[j].ID
	})
	return items
}
