// Package partial builds typed values from JSON objects that may be incomplete.
//
// While a run streams, every event carries a more complete version of the same
// output object. Early events omit fields the model has not produced yet, so a
// strict decoder would reject all of them but the last. Decode validates the
// fields that are present and fills absent ones with the field's declared default
// or its zero value, recursing through nested objects, lists of objects and maps
// of objects.
//
// Struct tags follow the conventions used for schema generation:
//
//	type Answer struct {
//		Text       string   `json:"text" required:"true"`
//		Confidence float64  `json:"confidence" default:"0.5"`
//		Language   string   `json:"language" default:"unknown"`
//		Sources    []Source `json:"sources"`
//		Draft      *Draft   `json:"draft,omitempty"`
//	}
package partial

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Kind is the structural shape of a field.
type Kind int

const (
	// KindScalar is a string, number or boolean.
	KindScalar Kind = iota
	// KindObject is a nested struct.
	KindObject
	// KindScalarList is a slice of scalars.
	KindScalarList
	// KindObjectList is a slice of nested structs.
	KindObjectList
	// KindObjectMap is a map with string keys and nested struct values.
	KindObjectMap
	// KindOpaque is anything decoded as-is by encoding/json.
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindObject:
		return "object"
	case KindScalarList:
		return "scalar_list"
	case KindObjectList:
		return "object_list"
	case KindObjectMap:
		return "object_map"
	default:
		return "opaque"
	}
}

// Field describes one JSON member of a struct.
type Field struct {
	Name     string
	Kind     Kind
	Required bool

	// Elem describes the nested struct for object, object list and object map kinds.
	Elem *Descriptor

	index    []int
	typ      reflect.Type
	pointer  bool
	elemPtr  bool
	depth    int
	defaults []byte
}

// HasDefault reports whether the field declares a default value.
func (f *Field) HasDefault() bool {
	return f.defaults != nil
}

// Descriptor is the immutable structural description of a struct type.
type Descriptor struct {
	Type   reflect.Type
	Fields []*Field

	byName map[string]*Field
}

// Field returns the field with the given JSON name.
func (d *Descriptor) Field(name string) (*Field, bool) {
	f, ok := d.byName[name]
	return f, ok
}

var descriptors sync.Map // reflect.Type -> *Descriptor

// DescriptorOf returns the descriptor of T, which must be a struct or a pointer to one.
func DescriptorOf[T any]() (*Descriptor, error) {
	return DescriptorFor(reflect.TypeFor[T]())
}

// DescriptorFor returns the cached descriptor of t, building it on first use.
func DescriptorFor(t reflect.Type) (*Descriptor, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("partial: %s is not a struct", t)
	}
	if d, ok := descriptors.Load(t); ok {
		return d.(*Descriptor), nil
	}

	d, err := newBuilder().build(t)
	if err != nil {
		return nil, err
	}
	actual, _ := descriptors.LoadOrStore(t, d)
	return actual.(*Descriptor), nil
}

// builder tracks descriptors under construction so recursive types terminate.
type builder struct {
	inProgress map[reflect.Type]*Descriptor
}

func newBuilder() *builder {
	return &builder{inProgress: make(map[reflect.Type]*Descriptor)}
}

func (b *builder) descriptor(t reflect.Type) (*Descriptor, error) {
	if d, ok := descriptors.Load(t); ok {
		return d.(*Descriptor), nil
	}
	if d, ok := b.inProgress[t]; ok {
		return d, nil
	}
	return b.build(t)
}

func (b *builder) build(t reflect.Type) (*Descriptor, error) {
	d := &Descriptor{Type: t, byName: make(map[string]*Field)}
	b.inProgress[t] = d

	if err := b.collect(d, t, nil, 0); err != nil {
		delete(b.inProgress, t)
		return nil, err
	}

	for _, f := range d.Fields {
		d.byName[f.Name] = f
	}
	return d, nil
}

func (b *builder) collect(d *Descriptor, t reflect.Type, index []int, depth int) error {
	for i := range t.NumField() {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		if !sf.IsExported() && !(sf.Anonymous && sf.Type.Kind() == reflect.Struct) {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		fieldIndex := append(append([]int(nil), index...), i)

		if sf.Anonymous && name == "" {
			et := sf.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct {
				if err := b.collect(d, et, fieldIndex, depth+1); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}

		f, err := b.field(sf, name, fieldIndex, depth)
		if err != nil {
			return err
		}
		d.add(f)
	}
	return nil
}

// add keeps the shallowest field when embedded structs collide on a name.
func (d *Descriptor) add(f *Field) {
	for i, existing := range d.Fields {
		if existing.Name != f.Name {
			continue
		}
		if f.depth < existing.depth {
			d.Fields[i] = f
		}
		return
	}
	d.Fields = append(d.Fields, f)
}

func (b *builder) field(sf reflect.StructField, name string, index []int, depth int) (*Field, error) {
	f := &Field{
		Name:     name,
		index:    index,
		typ:      sf.Type,
		depth:    depth,
		Required: sf.Tag.Get("required") == "true",
	}

	t := sf.Type
	if t.Kind() == reflect.Pointer {
		f.pointer = true
		t = t.Elem()
	}

	var err error
	switch {
	case isObject(t):
		f.Kind = KindObject
		f.Elem, err = b.descriptor(t)
	case t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8:
		elem := t.Elem()
		if elem.Kind() == reflect.Pointer && isObject(elem.Elem()) {
			f.elemPtr = true
			elem = elem.Elem()
		}
		switch {
		case isObject(elem):
			f.Kind = KindObjectList
			f.Elem, err = b.descriptor(elem)
		case isScalar(elem):
			f.Kind = KindScalarList
		default:
			f.Kind = KindOpaque
		}
	case t.Kind() == reflect.Map && t.Key().Kind() == reflect.String:
		elem := t.Elem()
		if elem.Kind() == reflect.Pointer && isObject(elem.Elem()) {
			f.elemPtr = true
			elem = elem.Elem()
		}
		if isObject(elem) {
			f.Kind = KindObjectMap
			f.Elem, err = b.descriptor(elem)
		} else {
			f.Kind = KindOpaque
		}
	case isScalar(t):
		f.Kind = KindScalar
	default:
		f.Kind = KindOpaque
	}
	if err != nil {
		return nil, err
	}

	if def, ok := sf.Tag.Lookup("default"); ok {
		f.defaults, err = defaultJSON(sf.Type, def)
		if err != nil {
			return nil, fmt.Errorf("partial: field %s.%s: invalid default %q: %w", sf.Type, sf.Name, def, err)
		}
	}
	return f, nil
}

// defaultJSON turns a default tag into JSON that decodes into a value of type t.
// String defaults are written bare, everything else as JSON.
func defaultJSON(t reflect.Type, def string) ([]byte, error) {
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}

	raw := []byte(def)
	if base.Kind() == reflect.String {
		var err error
		if raw, err = json.Marshal(def); err != nil {
			return nil, err
		}
	}

	probe := reflect.New(t)
	if err := json.Unmarshal(raw, probe.Interface()); err != nil {
		return nil, err
	}
	return raw, nil
}

var (
	jsonUnmarshaler = reflect.TypeFor[json.Unmarshaler]()
	textUnmarshaler = reflect.TypeFor[encoding.TextUnmarshaler]()
)

func customDecoding(t reflect.Type) bool {
	p := reflect.PointerTo(t)
	return p.Implements(jsonUnmarshaler) || p.Implements(textUnmarshaler)
}

// isObject reports whether t is decoded field by field.
func isObject(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && !customDecoding(t)
}

func isScalar(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Struct:
		return customDecoding(t)
	}
	return false
}
