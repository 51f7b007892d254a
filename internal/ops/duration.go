package ops

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"oms/internal/errors"
	"oms/pkg/exception"
)

var durationType = reflect.TypeOf(time.Duration(0))

// decodeJSON decodes data into out, accepting "24h" style strings wherever
// out holds a time.Duration. Plain numbers are still read as nanoseconds.
func decodeJSON(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if err := normalizeDurations(raw, reflect.TypeOf(out), ""); err != nil {
		return err
	}

	normalized, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(normalized, out)
}

func normalizeDurations(raw any, t reflect.Type, path string) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" || (!field.IsExported() && !field.Anonymous) {
			continue
		}
		if field.Anonymous && name == "" {
			if err := normalizeDurations(obj, field.Type, path); err != nil {
				return err
			}
			continue
		}
		if name == "" {
			name = field.Name
		}

		value, ok := obj[name]
		if !ok {
			continue
		}
		key := name
		if path != "" {
			key = path + "." + name
		}

		if field.Type != durationType {
			if err := normalizeDurations(value, field.Type, key); err != nil {
				return err
			}
			continue
		}
		s, ok := value.(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return errors.Wrapf(exception.ErrInvalidConfig, "%s: %v", key, err)
		}
		obj[name] = int64(d)
	}
	return nil
}
