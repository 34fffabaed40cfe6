// internal/record/record.go
package record

import (
	"bytes"
	"encoding/json"
)

// Relation is a related record set attached to a Record for output.
type Relation struct {
	Name  string
	Many  bool
	One   *Record
	Items []*Record
}

// Record is an ordered key to Value container for one dynamically shaped row.
// It is not safe for concurrent mutation.
type Record struct {
	keys      []string
	values    map[string]Value
	relations []Relation
}

func New() *Record {
	return &Record{values: make(map[string]Value)}
}

// Set stores v under key, appending the key if it is new.
func (r *Record) Set(key string, v Value) {
	if v == nil {
		v = Null{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

func (r *Record) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

func (r *Record) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Record) Len() int { return len(r.keys) }

// ID returns the integer primary key, or 0 when absent.
func (r *Record) ID() int64 {
	if v, ok := r.values["id"].(Int); ok {
		return int64(v)
	}
	return 0
}

// AttachOne attaches a single related record, or null when rel is nil.
func (r *Record) AttachOne(name string, rel *Record) {
	r.relations = append(r.relations, Relation{Name: name, One: rel})
}

// AttachMany attaches a list of related records.
func (r *Record) AttachMany(name string, items []*Record) {
	if items == nil {
		items = []*Record{}
	}
	r.relations = append(r.relations, Relation{Name: name, Many: true, Items: items})
}

func (r *Record) Relations() []Relation { return r.relations }

// Clone returns a copy that can be modified without touching r. Values are shared.
func (r *Record) Clone() *Record {
	c := &Record{
		keys:      make([]string, len(r.keys)),
		values:    make(map[string]Value, len(r.values)),
		relations: append([]Relation(nil), r.relations...),
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// Map returns the record as a plain map of native values, relations included.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.keys)+len(r.relations))
	for _, k := range r.keys {
		out[k] = r.values[k].Native()
	}
	for _, rel := range r.relations {
		if rel.Many {
			items := make([]map[string]any, 0, len(rel.Items))
			for _, it := range rel.Items {
				items = append(items, it.Map())
			}
			out[rel.Name] = items
			continue
		}
		if rel.One == nil {
			out[rel.Name] = nil
		} else {
			out[rel.Name] = rel.One.Map()
		}
	}
	return out
}

// MarshalJSON writes the fields in insertion order, then the attached relations.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writeKey := func(k string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		return nil
	}

	for _, k := range r.keys {
		if err := writeKey(k); err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k].Native())
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}

	for _, rel := range r.relations {
		if err := writeKey(rel.Name); err != nil {
			return nil, err
		}
		var (
			vb  []byte
			err error
		)
		if rel.Many {
			vb, err = json.Marshal(rel.Items)
		} else if rel.One == nil {
			vb = []byte("null")
		} else {
			vb, err = json.Marshal(rel.One)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
