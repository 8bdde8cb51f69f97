package lock

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNilLockKey means a key component resolved to nil.  That is a wiring
// bug, never an empty key.
var ErrNilLockKey = errors.New("lock key resolved to nil")

// TimeLayout is the canonical rendering of time values inside lock keys.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Key builds "operation:part1:part2..." from the protected operation's name
// and its argument values.  Sequences render in order, so callers must pass
// order-stable inputs.
func Key(operation string, parts ...any) (string, error) {
	var b strings.Builder
	b.WriteString(operation)
	for _, p := range parts {
		s, err := Render(p)
		if err != nil {
			return "", fmt.Errorf("lock key for %s: %w", operation, err)
		}
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String(), nil
}

// KeyTemplate substitutes {name} placeholders in template with the rendered
// value of args[name] and prefixes the operation name.  A placeholder
// without a value is an error.
func KeyTemplate(operation, template string, args map[string]any) (string, error) {
	var b strings.Builder
	b.WriteString(operation)
	b.WriteByte(':')
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("lock key for %s: unterminated placeholder in %q", operation, template)
		}
		name := rest[open+1 : open+end]
		v, ok := args[name]
		if !ok {
			return "", fmt.Errorf("lock key for %s: {%s}: %w", operation, name, ErrNilLockKey)
		}
		s, err := Render(v)
		if err != nil {
			return "", fmt.Errorf("lock key for %s: {%s}: %w", operation, name, err)
		}
		b.WriteString(rest[:open])
		b.WriteString(s)
		rest = rest[open+end+1:]
	}
	return b.String(), nil
}

// Render converts a single value into its key form.
func Render(v any) (string, error) {
	if v == nil {
		return "", ErrNilLockKey
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case time.Time:
		return t.UTC().Format(TimeLayout), nil
	case *time.Time:
		if t == nil {
			return "", ErrNilLockKey
		}
		return t.UTC().Format(TimeLayout), nil
	case fmt.Stringer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", ErrNilLockKey
		}
		return t.String(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "", ErrNilLockKey
		}
		return Render(rv.Elem().Interface())
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "", ErrNilLockKey
		}
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			s, err := Render(rv.Index(i).Interface())
			if err != nil {
				return "", err
			}
			out = append(out, s)
		}
		return strings.Join(out, ","), nil
	case reflect.Map:
		if rv.IsNil() {
			return "", ErrNilLockKey
		}
		out := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := Render(iter.Key().Interface())
			if err != nil {
				return "", err
			}
			val, err := Render(iter.Value().Interface())
			if err != nil {
				return "", err
			}
			out = append(out, k+"="+val)
		}
		sort.Strings(out)
		return strings.Join(out, ","), nil
	}
	return fmt.Sprintf("%v", v), nil
}
