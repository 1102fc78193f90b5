// Package outfmt selects between human, JSON and plain (TSV) output and
// writes the machine-readable forms.
package outfmt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type Mode struct {
	JSON  bool
	Plain bool
}

type ParseError struct{ msg string }

func (e *ParseError) Error() string { return e.msg }

func FromFlags(jsonOut bool, plainOut bool) (Mode, error) {
	if jsonOut && plainOut {
		return Mode{}, &ParseError{msg: "invalid output mode (cannot combine --json and --plain)"}
	}

	return Mode{JSON: jsonOut, Plain: plainOut}, nil
}

// FromEnv reads EASYCAL_JSON / EASYCAL_PLAIN; flags override it.
func FromEnv() Mode {
	return Mode{
		JSON:  envBool("EASYCAL_JSON"),
		Plain: envBool("EASYCAL_PLAIN"),
	}
}

type ctxKey struct{}

func WithMode(ctx context.Context, mode Mode) context.Context {
	return context.WithValue(ctx, ctxKey{}, mode)
}

func FromContext(ctx context.Context) Mode {
	if m, ok := ctx.Value(ctxKey{}).(Mode); ok {
		return m
	}

	return Mode{}
}

func IsJSON(ctx context.Context) bool  { return FromContext(ctx).JSON }
func IsPlain(ctx context.Context) bool { return FromContext(ctx).Plain }

type JSONTransform struct {
	// ResultsOnly drops the envelope (summary, status, jobId) and emits the
	// primary list.
	ResultsOnly bool
	// Select projects objects to the given fields; dot paths reach into
	// nested objects. Applied per element for lists.
	Select []string
}

type jsonTransformKey struct{}

func WithJSONTransform(ctx context.Context, t JSONTransform) context.Context {
	return context.WithValue(ctx, jsonTransformKey{}, t)
}

func JSONTransformFromContext(ctx context.Context) (JSONTransform, bool) {
	t, ok := ctx.Value(jsonTransformKey{}).(JSONTransform)
	return t, ok
}

func WriteJSON(ctx context.Context, w io.Writer, v any) error {
	if t, ok := JSONTransformFromContext(ctx); ok && (t.ResultsOnly || len(t.Select) > 0) {
		transformed, err := applyJSONTransform(v, t)
		if err != nil {
			return fmt.Errorf("transform json: %w", err)
		}
		v = transformed
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

// WriteTSV writes a header line and rows. Tabs and newlines inside cells
// become spaces so every row stays one line.
func WriteTSV(w io.Writer, header []string, rows [][]string) error {
	var b strings.Builder
	if len(header) > 0 {
		writeTSVLine(&b, header)
	}
	for _, r := range rows {
		writeTSVLine(&b, r)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeTSVLine(b *strings.Builder, cells []string) {
	for i, c := range cells {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteString(strings.NewReplacer("\t", " ", "\r", " ", "\n", " ").Replace(c))
	}
	b.WriteByte('\n')
}

func applyJSONTransform(v any, t JSONTransform) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	var anyV any
	if err := json.Unmarshal(b, &anyV); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	if t.ResultsOnly {
		anyV = unwrapPrimary(anyV)
	}

	if len(t.Select) > 0 {
		anyV = selectFields(anyV, t.Select)
	}

	return anyV, nil
}

// primaryKeys are the list fields of this tool's envelopes, in preference
// order.
var primaryKeys = []string{
	"results",
	"calendars",
	"groups",
	"jobs",
	"items",
	"issues",
	"tokens",
	"failed",
	"successful",
}

func unwrapPrimary(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}

	for _, k := range primaryKeys {
		if val, ok := m[k]; ok {
			return val
		}
	}

	return v
}

func selectFields(v any, fields []string) any {
	if list, ok := v.([]any); ok {
		out := make([]any, 0, len(list))
		for _, it := range list {
			out = append(out, selectFieldsFromItem(it, fields))
		}

		return out
	}

	return selectFieldsFromItem(v, fields)
}

func selectFieldsFromItem(v any, fields []string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if val, ok := getAtPath(m, f); ok {
			out[f] = val
		}
	}

	return out
}

func getAtPath(v any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}

	cur := v
	for _, seg := range strings.Split(path, ".") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, false
		}

		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}

	return cur, true
}

func envBool(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
