package cachemaster

import (
	"encoding"
	"fmt"
	"math/big"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// maxArgDepth bounds the value walk for self-referencing arguments; deeper
// data is left to the encoder.
const maxArgDepth = 64

var (
	timeType            = reflect.TypeFor[time.Time]()
	bigIntType          = reflect.TypeFor[big.Int]()
	cborMarshalerType   = reflect.TypeFor[cbor.Marshaler]()
	binaryMarshalerType = reflect.TypeFor[encoding.BinaryMarshaler]()
)

// encodesItself reports whether the CBOR encoder serializes t as a whole
// rather than field by field.
func encodesItself(t reflect.Type) bool {
	if t == timeType || t == bigIntType {
		return true
	}
	for _, iface := range []reflect.Type{cborMarshalerType, binaryMarshalerType} {
		if t.Implements(iface) || (t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(iface)) {
			return true
		}
	}
	return false
}

// checkArgType rejects argument types the encoder would serialize lossily:
// a struct with unexported fields drops them, so distinct arguments could
// share a memo key. dynamic reports whether t holds interface values that
// must be checked per call.
func checkArgType(t reflect.Type, seen map[reflect.Type]bool) (dynamic bool, err error) {
	if seen[t] || encodesItself(t) {
		return false, nil
	}
	seen[t] = true
	switch t.Kind() {
	case reflect.Interface:
		return true, nil
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return checkArgType(t.Elem(), seen)
	case reflect.Map:
		kd, err := checkArgType(t.Key(), seen)
		if err != nil {
			return false, err
		}
		vd, err := checkArgType(t.Elem(), seen)
		return kd || vd, err
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() && !(f.Anonymous && indirect(f.Type).Kind() == reflect.Struct) {
				return false, fmt.Errorf("type %s has unexported field %s", t, f.Name)
			}
			d, err := checkArgType(f.Type, seen)
			if err != nil {
				return false, err
			}
			dynamic = dynamic || d
		}
	}
	return dynamic, nil
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// checkArgValue applies checkArgType to the concrete values held behind
// interfaces in v.
func checkArgValue(v reflect.Value, depth int) error {
	if !v.IsValid() || depth > maxArgDepth {
		return nil
	}
	if v.Kind() != reflect.Interface {
		dynamic, err := checkArgType(v.Type(), map[reflect.Type]bool{})
		if err != nil || !dynamic {
			return err
		}
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return checkArgValue(v.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := checkArgValue(v.Index(i), depth+1); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkArgValue(iter.Key(), depth+1); err != nil {
				return err
			}
			if err := checkArgValue(iter.Value(), depth+1); err != nil {
				return err
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := checkArgValue(v.Field(i), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
