package state

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
)

// Encode encodes the state and returns an array of bytes.
func Encode(s *State) ([]byte, error) {
	var b bytes.Buffer

	_, err := fmt.Fprintf(&b, "#Version: %d\n", s.StateVersion)
	if err != nil {
		return []byte{}, err
	}

	err = encodeHelper(&b, []string{}, reflect.ValueOf(s))
	if err != nil {
		return []byte{}, err
	}

	return b.Bytes(), nil
}

// encodeHelper recursively walks the state struct and writes one "key: value" line per
// non-zero leaf. Fields tagged with `state:"-"` or `json:"-"` are skipped.
func encodeHelper(b *bytes.Buffer, keyPrefix []string, v reflect.Value) error {
	if v.IsZero() {
		return nil
	}

	key := strings.Join(keyPrefix, ".")

	switch v.Kind() { //nolint:exhaustive
	case reflect.Bool:
		return writeLine(b, key, v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return writeLine(b, key, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return writeLine(b, key, v.Uint())
	case reflect.String:
		return writeLine(b, key, strings.ReplaceAll(v.String(), "\n", "\\n"))
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}

		return encodeHelper(b, keyPrefix, v.Elem())
	case reflect.Map:
		keyBase := keyPrefix[len(keyPrefix)-1]

		iter := v.MapRange()
		for iter.Next() {
			if strings.Contains(iter.Key().String(), ".") {
				return fmt.Errorf("map key '%s' cannot contain dots", iter.Key())
			}

			keyPrefix[len(keyPrefix)-1] = fmt.Sprintf("%s[%s]", keyBase, iter.Key())

			err := encodeHelper(b, keyPrefix, iter.Value())
			if err != nil {
				return err
			}
		}
	case reflect.Slice:
		keyBase := keyPrefix[len(keyPrefix)-1]

		for i := range v.Len() {
			keyPrefix[len(keyPrefix)-1] = fmt.Sprintf("%s[%d]", keyBase, i)

			err := encodeHelper(b, keyPrefix, v.Index(i))
			if err != nil {
				return err
			}
		}
	case reflect.Struct:
		for _, field := range reflect.VisibleFields(v.Type()) {
			if !field.IsExported() || skipField(field) {
				continue
			}

			err := encodeHelper(b, append(keyPrefix, field.Name), v.FieldByIndex(field.Index))
			if err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s: unhandled kind '%s'", key, v.Kind())
	}

	return nil
}

func writeLine(b *bytes.Buffer, key string, value any) error {
	_, err := fmt.Fprintf(b, "%s: %v\n", key, value)

	return err
}

func skipField(field reflect.StructField) bool {
	return field.Tag.Get("json") == "-" || field.Tag.Get("state") == "-"
}
