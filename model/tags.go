package model

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Metadata holds the parsed `crud` tag information of a struct type.
type Metadata struct {
	// Label is the node label, defaulting to the struct's name.
	Label string
	// KeyField is the struct field tagged as primary key.
	KeyField string
	// KeyProp is the node property of the primary key.
	KeyProp string
	// Mappings maps struct field names to node property names.
	Mappings map[string]string
	// order keeps the field declaration order for deterministic output.
	order []string
}

// Properties returns the property names in field declaration order.
func (m *Metadata) Properties() []string {
	out := make([]string, 0, len(m.order))
	for _, f := range m.order {
		out = append(out, m.Mappings[f])
	}
	return out
}

var metaCache sync.Map

// MetadataOf parses, or loads from cache, the metadata of a struct type or a
// pointer to one.
func MetadataOf(typ reflect.Type) (*Metadata, error) {
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if cached, ok := metaCache.Load(typ); ok {
		return cached.(*Metadata), nil
	}
	meta, err := parseTagsFromType(typ)
	if err != nil {
		return nil, err
	}
	metaCache.Store(typ, meta)
	return meta, nil
}

// MetadataFor is the generic form of MetadataOf.
func MetadataFor[T any]() (*Metadata, error) {
	return MetadataOf(reflect.TypeOf((*T)(nil)).Elem())
}

// SchemaFor derives a schema from the `crud` tags of T. The struct name is the
// schema name and label; extra options are applied after the derived ones.
func SchemaFor[T any](opts ...SchemaOption) (*Schema, error) {
	meta, err := MetadataFor[T]()
	if err != nil {
		return nil, err
	}
	derived := []SchemaOption{
		WithLabels(meta.Label),
		WithKey(meta.KeyProp),
		WithFields(meta.Properties()...),
	}
	return NewSchema(meta.Label, append(derived, opts...)...), nil
}

// PropertiesOf reads the tagged fields of src, a struct or pointer to one.
func PropertiesOf(src any) (*Metadata, map[string]any, error) {
	val := reflect.ValueOf(src)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, nil, fmt.Errorf("entity must be a non-nil pointer")
		}
		val = val.Elem()
	}
	meta, err := MetadataOf(val.Type())
	if err != nil {
		return nil, nil, err
	}
	props := make(map[string]any, len(meta.Mappings))
	for field, prop := range meta.Mappings {
		props[prop] = val.FieldByName(field).Interface()
	}
	return meta, props, nil
}

// EntityFrom builds an entity of schema from the tagged fields of src.
func EntityFrom(schema *Schema, src any) (*Entity, error) {
	_, props, err := PropertiesOf(src)
	if err != nil {
		return nil, err
	}
	return NewEntity(schema).ForceFill(props), nil
}

func parseTagsFromType(typ reflect.Type) (*Metadata, error) {
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", typ.Name())
	}

	meta := &Metadata{
		Label:    typ.Name(),
		Mappings: make(map[string]string),
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("crud")
		if tag == "" {
			continue
		}

		isPk := false
		propName := ""
		for _, part := range strings.Split(tag, ",") {
			switch {
			case part == "pk":
				isPk = true
			case strings.HasPrefix(part, "property:"):
				propName = strings.TrimPrefix(part, "property:")
			case strings.HasPrefix(part, "label:"):
				meta.Label = strings.TrimPrefix(part, "label:")
			}
		}

		if propName == "" {
			return nil, fmt.Errorf("field %s is missing 'property' tag component", field.Name)
		}
		if isPk {
			meta.KeyField = field.Name
			meta.KeyProp = propName
		}
		meta.Mappings[field.Name] = propName
		meta.order = append(meta.order, field.Name)
	}

	if meta.KeyField == "" {
		return nil, fmt.Errorf("no primary key ('pk') tag defined for struct %s", typ.Name())
	}
	return meta, nil
}

// assignFields sets the tagged fields of val from attrs, converting between
// numeric kinds since the driver returns int64 and float64.
func assignFields(val reflect.Value, meta *Metadata, attrs map[string]any) error {
	for fieldName, propName := range meta.Mappings {
		field := val.FieldByName(fieldName)
		if !field.IsValid() || !field.CanSet() {
			continue
		}
		raw, ok := attrs[propName]
		if !ok || raw == nil {
			continue
		}
		v := reflect.ValueOf(raw)
		switch {
		case v.Type().AssignableTo(field.Type()):
			field.Set(v)
		case v.Type().ConvertibleTo(field.Type()) && convertible(v.Kind(), field.Kind()):
			field.Set(v.Convert(field.Type()))
		default:
			return fmt.Errorf("cannot assign property %s of type %s to field %s of type %s",
				propName, v.Type(), fieldName, field.Type())
		}
	}
	return nil
}

func convertible(from, to reflect.Kind) bool {
	return isNumeric(from) == isNumeric(to)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
