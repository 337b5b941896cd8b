package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Item describes one recommendable product.
type Item struct {
	Name    string   `json:"name"`
	Benefit string   `json:"benefit"`
	Dosage  string   `json:"dosage"`
	Form    string   `json:"form"`
	Systems []string `json:"systems"`
}

// Catalog is the read-only reference list of allowed recommendation items.
// Loaded once at startup and never mutated afterwards.
type Catalog struct {
	items  []Item
	byName map[string]Item
}

// Load reads the catalog from a JSON file. The file holds an array of items.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(items), nil
}

// New builds a catalog from items, dropping entries without a name.
func New(items []Item) *Catalog {
	c := &Catalog{byName: make(map[string]Item, len(items))}
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		item.Name = name
		if _, exists := c.byName[strings.ToLower(name)]; exists {
			continue
		}
		c.byName[strings.ToLower(name)] = item
		c.items = append(c.items, item)
	}
	sort.Slice(c.items, func(i, j int) bool {
		return strings.ToLower(c.items[i].Name) < strings.ToLower(c.items[j].Name)
	})
	return c
}

// Len reports how many items the catalog holds.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Items returns a copy of the catalog entries.
func (c *Catalog) Items() []Item {
	if c == nil {
		return nil
	}
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Lookup finds an item by name, case-insensitive.
func (c *Catalog) Lookup(name string) (Item, bool) {
	if c == nil {
		return Item{}, false
	}
	item, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return item, ok
}

// PromptList renders "name: benefit (dosage)" lines for inclusion in a
// synthesis prompt.
func (c *Catalog) PromptList() string {
	if c == nil || len(c.items) == 0 {
		return ""
	}
	var b strings.Builder
	for _, item := range c.items {
		b.WriteString("- ")
		b.WriteString(item.Name)
		if item.Benefit != "" {
			b.WriteString(": ")
			b.WriteString(item.Benefit)
		}
		if item.Dosage != "" {
			b.WriteString(" (")
			b.WriteString(item.Dosage)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
