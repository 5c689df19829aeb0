package partial

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Decode builds a T from payload, tolerating absent fields.
func Decode[T any](payload []byte) (T, error) {
	var out T
	err := Into(payload, &out)
	return out, err
}

// DecodeStrict is Decode followed by a check that every required field is present.
func DecodeStrict[T any](payload []byte) (T, error) {
	var out T
	err := StrictInto(payload, &out)
	return out, err
}

// Into decodes payload into the value dst points to, tolerating absent fields.
// Non-struct targets are decoded with encoding/json.
func Into(payload []byte, dst any) error {
	return decodeInto(payload, dst, false)
}

// StrictInto is Into with required fields enforced.
func StrictInto(payload []byte, dst any) error {
	return decodeInto(payload, dst, true)
}

func decodeInto(payload []byte, dst any, strict bool) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("partial: decode target must be a non-nil pointer, got %T", dst)
	}

	base := rv.Type().Elem()
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if !isObject(base) {
		if err := json.Unmarshal(payload, dst); err != nil {
			return &ValidationError{Value: payload, Reason: "invalid value", Err: err}
		}
		return nil
	}

	d, err := DescriptorFor(base)
	if err != nil {
		return err
	}

	target := rv.Elem()
	for target.Kind() == reflect.Pointer {
		if target.IsNil() {
			target.Set(reflect.New(target.Type().Elem()))
		}
		target = target.Elem()
	}
	return (&decoder{strict: strict}).object(d, "", payload, target)
}

type decoder struct {
	strict bool
}

func (s *decoder) object(d *Descriptor, path string, raw []byte, v reflect.Value) error {
	var members map[string]json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &members); err != nil {
			return &ValidationError{Field: path, Value: raw, Reason: "expected an object", Err: err}
		}
	}
	return s.members(d, path, members, v)
}

func (s *decoder) members(d *Descriptor, path string, members map[string]json.RawMessage, v reflect.Value) error {
	for _, f := range d.Fields {
		fv := fieldByIndex(v, f.index)
		fp := join(path, f.Name)

		raw, ok := members[f.Name]
		if !ok || isNull(raw) {
			if s.strict && f.Required {
				return &ValidationError{Field: fp, Reason: "field required"}
			}
			if err := absent(f, fp, fv); err != nil {
				return err
			}
			continue
		}

		if err := s.present(f, fp, raw, fv); err != nil {
			return err
		}
	}
	return nil
}

// absent stores the declared default of f, or its zero value.
func absent(f *Field, path string, fv reflect.Value) error {
	fv.SetZero()
	if f.defaults != nil {
		return json.Unmarshal(f.defaults, fv.Addr().Interface())
	}
	if f.pointer {
		return nil
	}

	switch f.Kind {
	case KindObject:
		// Nested defaults still apply; required checks do not.
		return (&decoder{}).members(f.Elem, path, nil, fv)
	case KindScalarList, KindObjectList:
		fv.Set(reflect.MakeSlice(fv.Type(), 0, 0))
	case KindObjectMap:
		fv.Set(reflect.MakeMap(fv.Type()))
	case KindOpaque:
		switch {
		case fv.Kind() == reflect.Map:
			fv.Set(reflect.MakeMap(fv.Type()))
		case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() != reflect.Uint8:
			fv.Set(reflect.MakeSlice(fv.Type(), 0, 0))
		}
	}
	return nil
}

func (s *decoder) present(f *Field, path string, raw json.RawMessage, fv reflect.Value) error {
	switch f.Kind {
	case KindObject:
		target := fv
		if f.pointer {
			nv := reflect.New(f.Elem.Type)
			fv.Set(nv)
			target = nv.Elem()
		}
		return s.object(f.Elem, path, raw, target)

	case KindObjectList:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return &ValidationError{Field: path, Value: raw, Reason: "expected a list", Err: err}
		}
		out := reflect.MakeSlice(collectionType(f), len(items), len(items))
		for i, item := range items {
			ev := out.Index(i)
			if f.elemPtr {
				if isNull(item) {
					continue
				}
				nv := reflect.New(f.Elem.Type)
				ev.Set(nv)
				ev = nv.Elem()
			}
			if err := s.object(f.Elem, fmt.Sprintf("%s[%d]", path, i), item, ev); err != nil {
				return err
			}
		}
		assign(f, fv, out)
		return nil

	case KindObjectMap:
		var items map[string]json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return &ValidationError{Field: path, Value: raw, Reason: "expected an object", Err: err}
		}
		mt := collectionType(f)
		out := reflect.MakeMapWithSize(mt, len(items))
		for k, item := range items {
			nv := reflect.New(f.Elem.Type)
			if err := s.object(f.Elem, join(path, k), item, nv.Elem()); err != nil {
				return err
			}
			key := reflect.ValueOf(k).Convert(mt.Key())
			if f.elemPtr {
				out.SetMapIndex(key, nv)
			} else {
				out.SetMapIndex(key, nv.Elem())
			}
		}
		assign(f, fv, out)
		return nil

	default:
		if err := json.Unmarshal(raw, fv.Addr().Interface()); err != nil {
			fv.SetZero()
			return &ValidationError{Field: path, Value: raw, Reason: "invalid value", Err: err}
		}
		return nil
	}
}

func collectionType(f *Field) reflect.Type {
	if f.pointer {
		return f.typ.Elem()
	}
	return f.typ
}

func assign(f *Field, fv, out reflect.Value) {
	if !f.pointer {
		fv.Set(out)
		return
	}
	p := reflect.New(out.Type())
	p.Elem().Set(out)
	fv.Set(p)
}

// fieldByIndex walks index, allocating nil embedded pointers on the way.
func fieldByIndex(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

var null = []byte("null")

func isNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), null)
}
