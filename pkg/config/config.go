// Package config loads service configuration from YAML files and environment variables.
//
// Structs describe their own sources through tags:
//
//	env:"HTTP_PORT"      environment variable overriding the field
//	yaml:"port"          key in the YAML file
//	default:"8080"       value used when neither source set the field
//	required:"true"      loading fails when the field stays empty
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Validator interface allows config structs to implement custom validation logic.
// If a config struct implements this interface, validation will be automatically
// called after loading configuration from files and environment variables.
type Validator interface {
	Validate() error
}

// setFromString assigns raw to field according to the field's kind.
func setFromString(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %s to duration: %w", raw, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to convert %s to int: %w", raw, err)
		}
		field.SetInt(v)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to convert %s to uint: %w", raw, err)
		}
		field.SetUint(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("failed to convert %s to float: %w", raw, err)
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %s to bool: %w", raw, err)
		}
		field.SetBool(v)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		parts := strings.Split(raw, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

func fieldKey(owner reflect.Type, f reflect.StructField) string {
	return owner.PkgPath() + "." + owner.Name() + "." + f.Name
}

// applyEnv overlays environment variables and records which fields they set.
func applyEnv(val reflect.Value, typeOfT reflect.Type, setFields map[string]bool) error {
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typeOfT.Field(i)
		if !fieldType.IsExported() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyEnv(field, fieldType.Type, setFields); err != nil {
				return err
			}
			continue
		}

		tag := fieldType.Tag.Get("env")
		if tag == "" {
			continue
		}
		envVal := os.Getenv(tag)
		if envVal == "" {
			continue
		}
		if err := setFromString(field, envVal); err != nil {
			return fmt.Errorf("env %s: %w", tag, err)
		}
		setFields[fieldKey(typeOfT, fieldType)] = true
	}
	return nil
}

// applyDefaults fills zero fields from their default tag and reports missing required ones.
func applyDefaults(val reflect.Value, typeOfT reflect.Type, setFields map[string]bool) error {
	var result error
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typeOfT.Field(i)
		if !fieldType.IsExported() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyDefaults(field, fieldType.Type, setFields); err != nil {
				result = multierror.Append(result, err)
			}
			continue
		}

		defaultTag, hasDefault := fieldType.Tag.Lookup("default")
		required := strings.EqualFold(fieldType.Tag.Get("required"), "true") || fieldType.Tag.Get("required") == "1"

		if !field.IsZero() || setFields[fieldKey(typeOfT, fieldType)] {
			continue
		}

		if hasDefault && defaultTag != "" {
			if err := setFromString(field, defaultTag); err != nil {
				result = multierror.Append(result, fmt.Errorf("default for %s: %w", fieldType.Name, err))
			}
			continue
		}

		if required {
			result = multierror.Append(result, fmt.Errorf("required field env:%s / yaml:%s is missing",
				fieldType.Tag.Get("env"), fieldType.Tag.Get("yaml")))
		}
	}
	return result
}

func validate(dest any) error {
	if v, ok := dest.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

func load[T any](dest *T) error {
	val := reflect.ValueOf(dest).Elem()
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("config destination must be a pointer to a struct, got %s", val.Kind())
	}

	setFields := make(map[string]bool)
	if err := applyEnv(val, val.Type(), setFields); err != nil {
		return err
	}
	if err := applyDefaults(val, val.Type(), setFields); err != nil {
		var zero T
		*dest = zero
		return err
	}
	return validate(dest)
}

// GetConfigFromEnvVars loads configuration from environment variables only.
// It processes struct tags: env, default, required.
// Example usage:
//
//	var cfg MyConfig
//	err := GetConfigFromEnvVars(&cfg)
func GetConfigFromEnvVars[T any](dest *T) error {
	return load(dest)
}

// GetConfig loads configuration from YAML file first, then overlays environment variables.
// ${VAR} references inside the YAML are expanded from the environment before parsing.
// If filepath is empty, only environment variables are used.
// If allowFileErrors is true, file read/parse errors fallback to env vars only.
func GetConfig[T any](dest *T, filepath string, allowFileErrors bool) error {
	if filepath == "" {
		return load(dest)
	}

	data, err := os.ReadFile(filepath) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if allowFileErrors {
			return load(dest)
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), dest); err != nil {
		if allowFileErrors {
			var zero T
			*dest = zero
			return load(dest)
		}
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return load(dest)
}
