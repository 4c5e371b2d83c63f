package state

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// errUnknownField is returned by decodeHelper when a key doesn't map to the current structure.
var errUnknownField = errors.New("unknown field")

// Decode reconstitutes a given state. Optionally, if provided, a list of upgrade functions will be
// applied before decoding the state.
//
// Lines which don't map to any known field are recorded in UnrecognizedFields rather than
// failing the whole decode; such a state then refuses to be saved.
func Decode(b []byte, upgradeFuncs UpgradeFuncs, s *State) error {
	lines := strings.Split(string(b), "\n")

	if strings.HasPrefix(lines[0], "#Version: ") {
		version, err := strconv.Atoi(strings.TrimPrefix(lines[0], "#Version: "))
		if err != nil {
			return err
		}

		s.StateVersion = version

		if upgradeFuncs == nil {
			upgradeFuncs = upgrades
		}

		for i := version; i < len(upgradeFuncs); i++ {
			if upgradeFuncs[i] == nil {
				continue
			}

			lines, err = upgradeFuncs[i](lines)
			if err != nil {
				return err
			}

			// An upgrade may generate more than one new line of content.
			lines = strings.Split(strings.Join(lines, "\n"), "\n")

			s.StateVersion = i + 1
		}
	}

	for _, line := range lines {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return fmt.Errorf("malformed line '%s'", line)
		}

		err := decodeHelper(reflect.ValueOf(s), strings.Split(key, "."), value)
		if err != nil {
			if errors.Is(err, errUnknownField) {
				s.UnrecognizedFields = append(s.UnrecognizedFields, key)

				continue
			}

			return fmt.Errorf("%s: %w", key, err)
		}
	}

	return nil
}

// decodeHelper walks the state struct following the provided keys and sets the value once
// it reaches the end.
//
// Map entries are unaddressable, so they're decoded into a copy which is then stored back.
func decodeHelper(v reflect.Value, keys []string, value string) error {
	for keyIndex, key := range keys {
		if reflect.Indirect(v).Kind() != reflect.Struct {
			return fmt.Errorf("unsupported kind '%s'", reflect.Indirect(v).Kind())
		}

		name, index, indexed := strings.Cut(key, "[")
		if indexed {
			index = strings.TrimSuffix(index, "]")
		}

		structType := reflect.Indirect(v).Type()

		sf, ok := structType.FieldByName(name)
		if !ok || !sf.IsExported() || skipField(sf) {
			return fmt.Errorf("%w '%s' for struct '%s'", errUnknownField, key, structType)
		}

		field := reflect.Indirect(v).FieldByIndex(sf.Index)

		switch field.Kind() { //nolint:exhaustive
		case reflect.Map:
			if field.IsNil() {
				field.Set(reflect.MakeMap(field.Type()))
			}

			entry := reflect.New(field.Type().Elem()).Elem()

			existing := field.MapIndex(reflect.ValueOf(index))
			if existing.IsValid() {
				entry.Set(existing)
			}

			var err error

			if keyIndex+1 < len(keys) {
				err = decodeHelper(entry, keys[keyIndex+1:], value)
			} else {
				err = setValue(entry, value)
			}

			if err != nil {
				return err
			}

			field.SetMapIndex(reflect.ValueOf(index), entry)

			return nil
		case reflect.Pointer:
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
		case reflect.Slice:
			i, err := strconv.Atoi(index)
			if err != nil {
				return err
			}

			for field.Len() <= i {
				field.Set(reflect.Append(field, reflect.Zero(field.Type().Elem())))
			}

			field = field.Index(i)
		default:
		}

		v = field
	}

	return setValue(reflect.Indirect(v), value)
}

// setValue converts and sets a string representation of a value.
func setValue(v reflect.Value, value string) error {
	switch v.Kind() { //nolint:exhaustive
	case reflect.Bool:
		bVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}

		v.SetBool(bVal)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		iVal, err := strconv.ParseInt(value, 10, v.Type().Bits())
		if err != nil {
			return err
		}

		v.SetInt(iVal)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uVal, err := strconv.ParseUint(value, 10, v.Type().Bits())
		if err != nil {
			return err
		}

		v.SetUint(uVal)
	case reflect.String:
		v.SetString(strings.ReplaceAll(value, "\\n", "\n"))
	default:
		return fmt.Errorf("unhandled kind '%s'", v.Kind())
	}

	return nil
}
