// Package helpers holds the output, flag, and daemon-client helpers shared
// by the CLI commands.
package helpers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the desired output format.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
	FormatCSV   OutputFormat = "csv"
)

// Formatter renders command results.
type Formatter interface {
	Format(data any, writer io.Writer) error
}

// NewFormatter creates a new Formatter for the given format.
func NewFormatter(format OutputFormat) (Formatter, error) {
	switch format {
	case FormatTable:
		return &TableFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// JSONFormatter formats data as JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any, writer io.Writer) error {
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data any, writer io.Writer) error {
	enc := yaml.NewEncoder(writer)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

// TableFormatter formats data as a table using `header` struct tags. A
// slice renders one row per element; a single struct renders one
// field/value row per tagged field.
type TableFormatter struct{}

func (f *TableFormatter) Format(data any, writer io.Writer) error {
	val := reflect.ValueOf(data)
	w := tabwriter.NewWriter(writer, 0, 0, 3, ' ', 0)

	switch indirect(val).Kind() {
	case reflect.Slice:
		val = indirect(val)
		if val.Len() == 0 {
			return nil
		}
		// Use the first element to determine headers
		headers := getHeaders(val.Index(0).Type())
		if _, err := fmt.Fprintln(w, strings.Join(headers, "\t")); err != nil {
			return err
		}
		for i := 0; i < val.Len(); i++ {
			row := getRowValues(val.Index(i))
			if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
				return err
			}
		}
	case reflect.Struct:
		headers := getHeaders(val.Type())
		values := getRowValues(val)
		for i := range headers {
			if _, err := fmt.Fprintf(w, "%s:\t%s\n", headers[i], values[i]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("data must be a struct or a slice")
	}
	return w.Flush()
}

// CSVFormatter formats data as CSV using struct tags.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data any, writer io.Writer) error {
	val := indirect(reflect.ValueOf(data))
	if val.Kind() != reflect.Slice {
		return fmt.Errorf("data must be a slice")
	}
	if val.Len() == 0 {
		return nil
	}

	w := csv.NewWriter(writer)
	if err := w.Write(getHeaders(val.Index(0).Type())); err != nil {
		return err
	}
	for i := 0; i < val.Len(); i++ {
		if err := w.Write(getRowValues(val.Index(i))); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	return v
}

func getHeaders(t reflect.Type) []string {
	var headers []string
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("header"); tag != "" {
			headers = append(headers, tag)
		}
	}
	return headers
}

func getRowValues(v reflect.Value) []string {
	var values []string
	v = indirect(v)
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Tag.Get("header") != "" {
			values = append(values, formatValue(v.Field(i)))
		}
	}
	return values
}

func formatValue(v reflect.Value) string {
	switch x := v.Interface().(type) {
	case time.Time:
		if x.IsZero() {
			return "-"
		}
		return x.Local().Format(time.DateTime)
	case time.Duration:
		return x.Round(time.Millisecond).String()
	case []string:
		return strings.Join(x, ",")
	case string:
		if x == "" {
			return "-"
		}
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}
