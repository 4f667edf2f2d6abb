package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between serialized key parts.
const KeySeparator = "::"

// KeySerializer turns a QueryKey into the canonical string the store and the
// fetch gateway index by. Two keys that are deep-equal must serialize to the
// same string.
type KeySerializer interface {
	SerializeKey(key QueryKey) string
}

var defaultSerializer KeySerializer = &defaultKeySerializer{}

// defaultKeySerializer serializes key parts with reflection. Every part
// except a plain string carries its type, so parts that are not deep-equal,
// such as "1", 1, int64(1) and 1.0, never share an id.
type defaultKeySerializer struct{}

var stringType = reflect.TypeOf("")

// NewDefaultKeySerializer returns the reflection based serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

func (s *defaultKeySerializer) SerializeKey(key QueryKey) string {
	parts := make([]string, len(key))
	for i, part := range key {
		parts[i] = s.serializeValue(part)
	}
	return strings.Join(parts, KeySeparator)
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt.Kind() {
	case reflect.String:
		if rt == stringType {
			return strconv.Quote(rv.String())
		}
		return rt.String() + ":" + strconv.Quote(rv.String())
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rt.String() + ":" + fmt.Sprintf("%v", v)
	case reflect.Ptr:
		if rv.IsNil() {
			return rt.String() + "(nil)"
		}
		return "&" + s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return rt.String() + "(nil)"
		}
		return rt.String() + s.serializeList(rv)
	case reflect.Array:
		if stringer, ok := v.(fmt.Stringer); ok {
			return rt.String() + ":" + strconv.Quote(stringer.String())
		}
		return rt.String() + s.serializeList(rv)
	case reflect.Map:
		if rv.IsNil() {
			return rt.String() + "(nil)"
		}
		return rt.String() + s.serializeMap(rv)
	case reflect.Struct:
		if stringer, ok := v.(fmt.Stringer); ok {
			return rt.String() + ":" + strconv.Quote(stringer.String())
		}
		return s.serializeStruct(rv, rt)
	}

	return s.jsonFallback(v)
}

func (s *defaultKeySerializer) serializeList(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// serializeMap sorts entries by their serialized key so output is stable.
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.serializeValue(iter.Key().Interface())+"="+s.serializeValue(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ",") + "}"
}

func (s *defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serializeValue(rv.Field(i).Interface()))
	}
	return rt.String() + "{" + strings.Join(parts, ",") + "}"
}

func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}
