package puzzle

import "slices"

// Catalog is an immutable, ordered set of puzzle records. It is safe for
// concurrent use without synchronization.
type Catalog struct {
	records []Record
	byID    map[string]int
	byFlag  map[string]int
}

// New validates records and builds a catalog from them, preserving order.
// Records without a match strategy get one inferred from their solution.
func New(records []Record) (*Catalog, error) {
	c := &Catalog{
		records: make([]Record, 0, len(records)),
		byID:    make(map[string]int, len(records)),
		byFlag:  make(map[string]int, len(records)),
	}
	for _, r := range records {
		if r.Match == "" {
			r.Match = InferMatch(r.Type, r.Solution)
		}
		if err := validateRecord(r); err != nil {
			return nil, err
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, validationErrorf("duplicate puzzle id %q", r.ID)
		}
		if prev, dup := c.byFlag[r.Flag]; dup {
			return nil, validationErrorf("puzzles %q and %q share flag %q", c.records[prev].ID, r.ID, r.Flag)
		}
		c.byID[r.ID] = len(c.records)
		c.byFlag[r.Flag] = len(c.records)
		c.records = append(c.records, r)
	}
	return c, nil
}

// Len returns the number of records.
func (c *Catalog) Len() int { return len(c.records) }

// Records returns a copy of all records in catalog order.
func (c *Catalog) Records() []Record {
	return slices.Clone(c.records)
}

// Lookup returns the record with the given id.
func (c *Catalog) Lookup(id string) (Record, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Record{}, false
	}
	return c.records[i], true
}

// HasFlag reports whether flag is the reward of some record.
func (c *Catalog) HasFlag(flag string) bool {
	_, ok := c.byFlag[flag]
	return ok
}

// Flags returns every reward flag in catalog order.
func (c *Catalog) Flags() []string {
	flags := make([]string, len(c.records))
	for i, r := range c.records {
		flags[i] = r.Flag
	}
	return flags
}
