// Package config loads command options and daemon settings from TOML files
// and the environment, and watches the settings file for changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "V4L2TRICKS_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig fills opts with values from the TOML file named by its Config
// field and from V4L2TRICKS_* variables. Precedence is CLI flag, then
// environment, then file; flags set explicitly on cmd are never overwritten.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: expected pointer to struct, got %T", opts)
	}
	v = v.Elem()

	changed := changedFlags(cmd)
	fields := make([]binding, 0, v.NumField())
	var configPath string
	for i := range v.NumField() {
		sf := v.Type().Field(i)
		if sf.Name == "Config" && sf.Type.Kind() == reflect.String {
			configPath = v.Field(i).String()
		}
		if changed[fieldNameToFlag(sf.Name)] {
			continue
		}
		fields = append(fields, binding{value: v.Field(i), toml: sf.Tag.Get("toml"), env: sf.Tag.Get("env")})
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return fmt.Errorf("read config: %w", err)
		default:
			var doc map[string]any
			if err := toml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("failed to parse TOML config: %w", err)
			}
			for _, b := range fields {
				if b.toml == "" {
					continue
				}
				if raw := getNestedValue(doc, b.toml); raw != nil {
					setFieldValue(b.value, raw)
				}
			}
		}
	}

	for _, b := range fields {
		if b.env == "" {
			continue
		}
		if raw, ok := os.LookupEnv(EnvPrefix + b.env); ok && raw != "" {
			setFieldValueFromString(b.value, raw)
		}
	}
	return nil
}

type binding struct {
	value reflect.Value
	toml  string
	env   string
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	visit := func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	}
	cmd.Flags().VisitAll(visit)
	cmd.PersistentFlags().VisitAll(visit)
	return changed
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "PreviewIncrements" -> "preview-increments".
func fieldNameToFlag(fieldName string) string {
	var out []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			out = append(out, '-')
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

// getNestedValue resolves a dotted path such as "stream.device".
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current[parts[len(parts)-1]]
}

func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}
	if field.Type() == durationType {
		if s, ok := value.(string); ok {
			if d, err := time.ParseDuration(s); err == nil {
				field.SetInt(int64(d))
			}
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		if arr, ok := value.([]any); ok {
			out := make([]string, 0, len(arr))
			for _, item := range arr {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}
}

func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}
	if field.Type() == durationType {
		if d, err := time.ParseDuration(value); err == nil {
			field.SetInt(int64(d))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(value, ",")
		out := make([]string, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		field.Set(reflect.ValueOf(out))
	}
}

// LoadLoggingConfig reads the [logging] table. Missing or broken files give
// the defaults: info level, text format.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if configPath == "" {
		return cfg
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	// Anything besides level and format is a per-module level.
	for key, value := range raw.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
