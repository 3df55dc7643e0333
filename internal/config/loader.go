package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with an explicit variable lookup. Every unparsable or
// missing required variable is reported, not only the first.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if errs := populate(reflect.ValueOf(cfg).Elem(), getenv); len(errs) > 0 {
		return nil, fmt.Errorf("config load: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// populate fills the tagged fields of the struct v, descending into nested
// structs. A field is read from its env tag, then its envAlt tag, then its
// default tag.
func populate(v reflect.Value, getenv func(string) string) []error {
	var errs []error
	t := v.Type()

	for i := range t.NumField() {
		sf, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct && sf.Type != durationType {
			errs = append(errs, populate(fv, getenv)...)
			continue
		}

		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := lookup(getenv, name, sf.Tag.Get("envAlt"))
		if !ok {
			if sf.Tag.Get("required") == "true" {
				errs = append(errs, fmt.Errorf("%s is required", name))
				continue
			}
			raw = sf.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := assign(fv, raw); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", name, raw, err))
		}
	}
	return errs
}

func lookup(getenv func(string) string, names ...string) (string, bool) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if v := getenv(n); v != "" {
			return v, true
		}
	}
	return "", false
}

// assign parses raw into the field according to its type.
func assign(fv reflect.Value, raw string) error {
	if fv.Kind() == reflect.String {
		fv.SetString(raw)
		return nil
	}
	raw = strings.TrimSpace(raw)

	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		fv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		fv.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type %s", fv.Kind())
	}
	return nil
}
