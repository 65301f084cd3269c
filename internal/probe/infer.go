package probe

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind is an inferred JSON type.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindLong
	KindDouble
	KindString
	KindStruct
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindStruct:
		return "struct"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DataType is an inferred type. Fields is set for structs (sorted by name),
// Elem for arrays.
type DataType struct {
	Kind   Kind
	Fields []StructField
	Elem   *DataType
}

type StructField struct {
	Name string
	Type DataType
}

// TypeOf infers the type of one decoded JSON value. Numbers must be
// json.Number; integral literals are long, anything with a fraction or an
// exponent is double.
func TypeOf(v any) DataType {
	switch t := v.(type) {
	case nil:
		return DataType{Kind: KindNull}
	case bool:
		return DataType{Kind: KindBoolean}
	case json.Number:
		if strings.ContainsAny(string(t), ".eE") {
			return DataType{Kind: KindDouble}
		}
		if _, err := t.Int64(); err != nil {
			return DataType{Kind: KindDouble}
		}
		return DataType{Kind: KindLong}
	case float64:
		return DataType{Kind: KindDouble}
	case int64, int:
		return DataType{Kind: KindLong}
	case string:
		return DataType{Kind: KindString}
	case map[string]any:
		return structOf(t)
	case []any:
		elem := DataType{Kind: KindNull}
		for _, e := range t {
			elem = Merge(elem, TypeOf(e))
		}
		return DataType{Kind: KindArray, Elem: &elem}
	default:
		return DataType{Kind: KindString}
	}
}

func structOf(obj map[string]any) DataType {
	fields := make([]StructField, 0, len(obj))
	for k, v := range obj {
		fields = append(fields, StructField{Name: k, Type: TypeOf(v)})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return DataType{Kind: KindStruct, Fields: fields}
}

// Merge widens a and b to a type that holds both:
//   - null merges into anything;
//   - long and double widen to double;
//   - structs merge field by field, arrays by element;
//   - every other conflict falls back to string.
func Merge(a, b DataType) DataType {
	switch {
	case a.Kind == KindNull:
		return b
	case b.Kind == KindNull:
		return a
	}
	if a.Kind == b.Kind {
		switch a.Kind {
		case KindStruct:
			return mergeStructs(a, b)
		case KindArray:
			elem := Merge(*a.Elem, *b.Elem)
			return DataType{Kind: KindArray, Elem: &elem}
		default:
			return a
		}
	}
	if isNumeric(a.Kind) && isNumeric(b.Kind) {
		return DataType{Kind: KindDouble}
	}
	return DataType{Kind: KindString}
}

func isNumeric(k Kind) bool { return k == KindLong || k == KindDouble }

func mergeStructs(a, b DataType) DataType {
	out := make([]StructField, 0, len(a.Fields)+len(b.Fields))
	i, j := 0, 0
	for i < len(a.Fields) && j < len(b.Fields) {
		fa, fb := a.Fields[i], b.Fields[j]
		switch {
		case fa.Name == fb.Name:
			out = append(out, StructField{Name: fa.Name, Type: Merge(fa.Type, fb.Type)})
			i++
			j++
		case fa.Name < fb.Name:
			out = append(out, fa)
			i++
		default:
			out = append(out, fb)
			j++
		}
	}
	out = append(out, a.Fields[i:]...)
	out = append(out, b.Fields[j:]...)
	return DataType{Kind: KindStruct, Fields: out}
}

// String renders t compactly, e.g. "struct<a:long,b:array<string>>".
func (t DataType) String() string {
	switch t.Kind {
	case KindStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ":" + f.Type.String()
		}
		return "struct<" + strings.Join(parts, ",") + ">"
	case KindArray:
		return "array<" + t.Elem.String() + ">"
	default:
		return t.Kind.String()
	}
}

// writeTree renders t the way a printSchema tree shows a column and its
// children.
func writeTree(b *strings.Builder, name string, t DataType, depth int) {
	indent := strings.Repeat(" |   ", depth)
	fmt.Fprintf(b, "%s |-- %s: %s (nullable = true)\n", indent, name, t.Kind)
	writeChildren(b, t, depth+1)
}

func writeChildren(b *strings.Builder, t DataType, depth int) {
	switch t.Kind {
	case KindStruct:
		for _, f := range t.Fields {
			writeTree(b, f.Name, f.Type, depth)
		}
	case KindArray:
		indent := strings.Repeat(" |   ", depth)
		fmt.Fprintf(b, "%s |-- element: %s (containsNull = true)\n", indent, t.Elem.Kind)
		writeChildren(b, *t.Elem, depth+1)
	}
}
