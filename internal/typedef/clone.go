package typedef

// Cloner deep-copies Values and Tables while preserving identity: a table
// reached twice is copied once, and cycles are reproduced rather than
// followed forever. Frozen tables are returned as-is.
type Cloner struct {
	values map[*Value]*Value
	tables map[*Table]*Table
}

// NewCloner returns a Cloner with an empty identity map.
func NewCloner() *Cloner {
	return &Cloner{
		values: make(map[*Value]*Value),
		tables: make(map[*Table]*Table),
	}
}

// Value returns the copy of v.
func (c *Cloner) Value(v *Value) *Value {
	if v == nil {
		return nil
	}
	if cp, ok := c.values[v]; ok {
		return cp
	}
	cp := &Value{
		Kind:        v.Kind,
		Prim:        v.Prim,
		Description: v.Description,
		Variadic:    v.Variadic,
	}
	c.values[v] = cp
	if v.Fields != nil {
		cp.Fields = c.Table(v.Fields)
	}
	if v.ArgNames != nil {
		cp.ArgNames = append([]string(nil), v.ArgNames...)
	}
	cp.ArgTypes = c.Values(v.ArgTypes)
	cp.ReturnTypes = c.Values(v.ReturnTypes)
	return cp
}

// Values copies each element of vs.
func (c *Cloner) Values(vs []*Value) []*Value {
	if vs == nil {
		return nil
	}
	out := make([]*Value, len(vs))
	for i, v := range vs {
		out[i] = c.Value(v)
	}
	return out
}

// Table returns the copy of t. The copy is never frozen.
func (c *Cloner) Table(t *Table) *Table {
	if t == nil {
		return nil
	}
	if t.frozen {
		return t
	}
	if cp, ok := c.tables[t]; ok {
		return cp
	}
	cp := &Table{fields: make(map[string]*Value, len(t.fields))}
	c.tables[t] = cp
	for k, v := range t.fields {
		cp.fields[k] = c.Value(v)
	}
	cp.meta = c.Table(t.meta)
	return cp
}
