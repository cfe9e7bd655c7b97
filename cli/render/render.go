// Package render formats command output for the mediasync CLI.
//
// Format selection:
//   - --format always wins; unknown formats are errors
//   - otherwise table on a TTY and json when piped
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/mediasync/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string. "" means the caller picks.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatTable, FormatYAML, "":
		return f, nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer writes values in one format.
type Renderer struct {
	format Format
	out    io.Writer
}

// NewRenderer creates a renderer from the --format flag.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatJSON
		if isTTY(os.Stdout) {
			format = FormatTable
		}
	}
	return &Renderer{format: format, out: c.App.Writer}, nil
}

// NewRendererWithWriter creates a renderer writing to out.
func NewRendererWithWriter(format Format, out io.Writer) *Renderer {
	return &Renderer{format: format, out: out}
}

// Format returns the selected format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render writes data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI shows data in the read-only TUI for view.
func (r *Renderer) RenderTUI(view string, data any) error {
	if !tui.IsTUISupported(view) {
		return fmt.Errorf("--tui is not supported for %s", view)
	}
	return tui.Run(view, data)
}

func (r *Renderer) renderTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	v := deref(reflect.ValueOf(data))
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return writeRows(w, v)
	case reflect.Struct, reflect.Map:
		for _, f := range fieldsOf(v) {
			fmt.Fprintf(w, "%s:\t%s\n", f.name, cell(f.value))
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return nil
}

func writeRows(w io.Writer, v reflect.Value) error {
	if v.Len() == 0 {
		fmt.Fprintln(w, "(no results)")
		return nil
	}

	var headers []string
	for _, f := range fieldsOf(deref(v.Index(0))) {
		headers = append(headers, f.name)
	}
	fmt.Fprintln(w, strings.ToUpper(strings.Join(headers, "\t")))

	for i := range v.Len() {
		byName := make(map[string]reflect.Value)
		for _, f := range fieldsOf(deref(v.Index(i))) {
			byName[f.name] = f.value
		}
		row := make([]string, len(headers))
		for j, h := range headers {
			row[j] = cell(byName[h])
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return nil
}

type field struct {
	name  string
	value reflect.Value
}

// fieldsOf lists struct fields in declaration order or map entries by key.
func fieldsOf(v reflect.Value) []field {
	var out []field
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			out = append(out, field{name: fieldName(t.Field(i)), value: v.Field(i)})
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			out = append(out, field{name: fmt.Sprint(k.Interface()), value: v.MapIndex(k)})
		}
		slices.SortFunc(out, func(a, b field) int { return strings.Compare(a.name, b.name) })
	}
	return out
}

func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return strings.ToLower(f.Name)
}

var (
	durationType = reflect.TypeFor[time.Duration]()
	timeType     = reflect.TypeFor[time.Time]()
)

func cell(v reflect.Value) string {
	v = deref(v)
	if !v.IsValid() {
		return ""
	}

	switch v.Type() {
	case durationType:
		return time.Duration(v.Int()).Round(time.Microsecond).String()
	case timeType:
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return "-"
		}
		return t.Format(time.RFC3339)
	}

	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		// Small maps such as tracks_by_kind read better inline.
		parts := make([]string, 0, v.Len())
		for _, f := range fieldsOf(v) {
			parts = append(parts, f.name+"="+cell(f.value))
		}
		return strings.Join(parts, " ")
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
