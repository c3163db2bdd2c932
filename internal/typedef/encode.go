package typedef

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Bundle groups values that must be encoded together because they may
// share tables: a module's return values and its global bindings usually
// point at the same module table.
type Bundle struct {
	Values []*Value
	Named  map[string]*Value
}

// wire forms reference values and tables by 1-based index into the pools so
// shared and cyclic structure survives a round trip; 0 means absent.
type wireValue struct {
	Kind     string   `json:"kind"`
	Prim     string   `json:"prim,omitempty"`
	Table    int      `json:"table,omitempty"`
	Desc     string   `json:"desc,omitempty"`
	Args     []int    `json:"args,omitempty"`
	ArgNames []string `json:"arg_names,omitempty"`
	Returns  []int    `json:"returns,omitempty"`
	Variadic bool     `json:"variadic,omitempty"`
}

type wireTable struct {
	Fields map[string]int `json:"fields,omitempty"`
	Meta   int            `json:"meta,omitempty"`
}

type wireBundle struct {
	Values []wireValue     `json:"values"`
	Tables []wireTable     `json:"tables"`
	Roots  []int           `json:"roots,omitempty"`
	Named  map[string]int  `json:"named,omitempty"`
}

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindPrimitive: "primitive",
	KindTable:     "table",
	KindFunction:  "function",
}

type encoder struct {
	wb     wireBundle
	values map[*Value]int
	tables map[*Table]int
}

func (e *encoder) value(v *Value) int {
	if v == nil {
		return 0
	}
	if id, ok := e.values[v]; ok {
		return id
	}
	e.wb.Values = append(e.wb.Values, wireValue{})
	id := len(e.wb.Values)
	e.values[v] = id

	w := wireValue{
		Kind:     kindNames[v.Kind],
		Prim:     v.Prim,
		Desc:     v.Description,
		ArgNames: v.ArgNames,
		Variadic: v.Variadic,
	}
	w.Table = e.table(v.Fields)
	for _, a := range v.ArgTypes {
		w.Args = append(w.Args, e.value(a))
	}
	for _, r := range v.ReturnTypes {
		w.Returns = append(w.Returns, e.value(r))
	}
	e.wb.Values[id-1] = w
	return id
}

func (e *encoder) table(t *Table) int {
	if t == nil {
		return 0
	}
	if id, ok := e.tables[t]; ok {
		return id
	}
	e.wb.Tables = append(e.wb.Tables, wireTable{})
	id := len(e.wb.Tables)
	e.tables[t] = id

	w := wireTable{Fields: make(map[string]int, len(t.fields))}
	for _, k := range t.Keys() {
		w.Fields[k] = e.value(t.fields[k])
	}
	w.Meta = e.table(t.meta)
	e.wb.Tables[id-1] = w
	return id
}

// MarshalJSON encodes the bundle with shared structure preserved.
func (b Bundle) MarshalJSON() ([]byte, error) {
	e := &encoder{
		values: make(map[*Value]int),
		tables: make(map[*Table]int),
	}
	for _, v := range b.Values {
		e.wb.Roots = append(e.wb.Roots, e.value(v))
	}
	if len(b.Named) > 0 {
		e.wb.Named = make(map[string]int, len(b.Named))
		keys := make([]string, 0, len(b.Named))
		for k := range b.Named {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e.wb.Named[k] = e.value(b.Named[k])
		}
	}
	return json.Marshal(e.wb)
}

// UnmarshalJSON decodes a bundle produced by MarshalJSON. Decoded tables
// are mutable.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	var wb wireBundle
	if err := json.Unmarshal(data, &wb); err != nil {
		return fmt.Errorf("typedef: decode bundle: %w", err)
	}

	values := make([]*Value, len(wb.Values))
	for i := range values {
		values[i] = &Value{}
	}
	tables := make([]*Table, len(wb.Tables))
	for i := range tables {
		tables[i] = NewTableFields()
	}

	valueAt := func(id int) (*Value, error) {
		if id == 0 {
			return nil, nil
		}
		if id < 0 || id > len(values) {
			return nil, fmt.Errorf("typedef: decode bundle: value index %d out of range", id)
		}
		return values[id-1], nil
	}
	tableAt := func(id int) (*Table, error) {
		if id == 0 {
			return nil, nil
		}
		if id < 0 || id > len(tables) {
			return nil, fmt.Errorf("typedef: decode bundle: table index %d out of range", id)
		}
		return tables[id-1], nil
	}
	valueList := func(ids []int) ([]*Value, error) {
		if ids == nil {
			return nil, nil
		}
		out := make([]*Value, len(ids))
		for i, id := range ids {
			v, err := valueAt(id)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	for i, w := range wb.Values {
		v := values[i]
		v.Kind = kindFromName(w.Kind)
		v.Prim = w.Prim
		v.Description = w.Desc
		v.ArgNames = w.ArgNames
		v.Variadic = w.Variadic
		var err error
		if v.Fields, err = tableAt(w.Table); err != nil {
			return err
		}
		if v.ArgTypes, err = valueList(w.Args); err != nil {
			return err
		}
		if v.ReturnTypes, err = valueList(w.Returns); err != nil {
			return err
		}
	}
	for i, w := range wb.Tables {
		t := tables[i]
		for k, id := range w.Fields {
			v, err := valueAt(id)
			if err != nil {
				return err
			}
			t.fields[k] = v
		}
		meta, err := tableAt(w.Meta)
		if err != nil {
			return err
		}
		t.meta = meta
	}

	roots, err := valueList(wb.Roots)
	if err != nil {
		return err
	}
	b.Values = roots
	b.Named = nil
	if len(wb.Named) > 0 {
		b.Named = make(map[string]*Value, len(wb.Named))
		for k, id := range wb.Named {
			v, err := valueAt(id)
			if err != nil {
				return err
			}
			b.Named[k] = v
		}
	}
	return nil
}

func kindFromName(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}
