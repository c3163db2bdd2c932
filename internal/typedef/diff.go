package typedef

import "errors"

// Snapshot is a shallow capture of a table's own entries at one point in
// time. It records references, not copies: values mutated in place after
// the capture are seen through the snapshot.
type Snapshot struct {
	table   *Table
	entries map[string]*Value
}

// Snapshot captures the current own entries of t.
func (t *Table) Snapshot() *Snapshot {
	entries := make(map[string]*Value, len(t.fields))
	for k, v := range t.fields {
		entries[k] = v
	}
	return &Snapshot{table: t, entries: entries}
}

// Change is one key whose binding differs between a snapshot and the live
// table. Old is nil for keys added after the snapshot.
type Change struct {
	Key string
	Old *Value
	New *Value
}

// Changes lists the keys of the live table whose binding was added or
// replaced since the snapshot, sorted by key.
func (s *Snapshot) Changes() []Change {
	var out []Change
	for _, k := range s.table.Keys() {
		cur := s.table.fields[k]
		old, ok := s.entries[k]
		if ok && old == cur {
			continue
		}
		out = append(out, Change{Key: k, Old: old, New: cur})
	}
	return out
}

// Apply writes every captured binding back onto the live table, restoring
// the snapshot's own keys over whatever was merged in since.
func (s *Snapshot) Apply() error {
	var errs []error
	for k, v := range s.entries {
		if err := s.table.Set(k, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Diff is a detached deep copy of a table's own entries. Nested tables are
// copied too, except frozen ones which are shared by reference since they
// can never change. A Diff is never mutated after capture, so it can be
// cached and replayed onto any number of tables.
type Diff struct {
	Entries map[string]*Value
}

// Diff captures a deep copy of the own entries of t.
func (t *Table) Diff() *Diff {
	return t.DiffWith(NewCloner())
}

// DiffWith is Diff copying through c, so values cloned with the same c
// elsewhere keep their identity with the captured entries.
func (t *Table) DiffWith(c *Cloner) *Diff {
	entries := make(map[string]*Value, len(t.fields))
	for k, v := range t.fields {
		entries[k] = c.Value(v)
	}
	return &Diff{Entries: entries}
}

// Len returns the number of captured entries; a nil Diff is empty.
func (d *Diff) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Entries)
}

// Keys returns the captured keys in sorted order.
func (d *Diff) Keys() []string {
	if d == nil {
		return nil
	}
	t := &Table{fields: d.Entries}
	return t.Keys()
}

// ApplyTo merges the captured entries onto t, cloning through c so the
// Diff itself stays pristine. Sharing c across several ApplyTo and
// Cloner.Value calls preserves table identity between them.
func (d *Diff) ApplyTo(t *Table, c *Cloner) error {
	if d == nil {
		return nil
	}
	if c == nil {
		c = NewCloner()
	}
	var errs []error
	for _, k := range d.Keys() {
		if err := t.Set(k, c.Value(d.Entries[k])); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
