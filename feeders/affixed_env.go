package feeders

import (
	"encoding"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// AffixedEnvFeeder is a feeder that reads environment variables with a prefix and/or suffix.
// A field tagged `env:"SNAPSHOT_PATH"` is read from PREFIX_SNAPSHOT_PATH_SUFFIX.
// Nested structs are walked with the same affixes.
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string
}

// NewAffixedEnvFeeder creates a new AffixedEnvFeeder with the specified prefix and suffix
func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed reads environment variables and populates the provided structure
func (f AffixedEnvFeeder) Feed(structure any) error {
	inputType := reflect.TypeOf(structure)
	if inputType == nil || inputType.Kind() != reflect.Pointer || inputType.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	if f.Prefix == "" && f.Suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}
	return f.processStructFields(reflect.ValueOf(structure).Elem())
}

// processStructFields iterates through struct fields
func (f AffixedEnvFeeder) processStructFields(rv reflect.Value) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !fieldType.IsExported() {
			continue
		}
		if err := f.processField(field, &fieldType); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

// processField handles a single struct field
func (f AffixedEnvFeeder) processField(field reflect.Value, fieldType *reflect.StructField) error {
	envTag, tagged := fieldType.Tag.Lookup("env")
	if tagged {
		return f.setFieldFromEnv(field, envTag)
	}

	switch field.Kind() {
	case reflect.Struct:
		return f.processStructFields(field)
	case reflect.Pointer:
		if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
			return f.processStructFields(field.Elem())
		}
	}
	return nil
}

// EnvName returns the variable name a tag resolves to under these affixes.
func (f AffixedEnvFeeder) EnvName(envTag string) string {
	envName := strings.ToUpper(envTag)
	if f.Prefix != "" {
		envName = strings.ToUpper(strings.TrimSuffix(f.Prefix, "_")) + "_" + envName
	}
	if f.Suffix != "" {
		envName = envName + "_" + strings.ToUpper(strings.TrimPrefix(f.Suffix, "_"))
	}
	return envName
}

// setFieldFromEnv sets a field value from an environment variable
func (f AffixedEnvFeeder) setFieldFromEnv(field reflect.Value, envTag string) error {
	if envValue := os.Getenv(f.EnvName(envTag)); envValue != "" {
		return SetField(field, envValue)
	}
	return nil
}

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

// SetField converts raw into the field's type and stores it. Types that
// implement encoding.TextUnmarshaler parse themselves; everything else goes
// through golobby/cast.
func SetField(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return ErrFieldCannotBeSet
	}

	if field.CanAddr() && field.Addr().Type().Implements(textUnmarshalerType) {
		u := field.Addr().Interface().(encoding.TextUnmarshaler)
		if err := u.UnmarshalText([]byte(raw)); err != nil {
			return fmt.Errorf("%w %q to %v: %w", ErrCannotConvert, raw, field.Type(), err)
		}
		return nil
	}

	if field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String {
		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = reflect.Append(out, reflect.ValueOf(p).Convert(field.Type().Elem()))
			}
		}
		field.Set(out)
		return nil
	}

	converted, err := cast.FromType(raw, field.Type())
	if err != nil {
		return fmt.Errorf("%w %q to %v: %w", ErrCannotConvert, raw, field.Type(), err)
	}
	v := reflect.ValueOf(converted)
	if !v.Type().ConvertibleTo(field.Type()) {
		return fmt.Errorf("%w %q to %v", ErrCannotConvert, raw, field.Type())
	}
	field.Set(v.Convert(field.Type()))
	return nil
}
