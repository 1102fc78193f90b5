package cmd

import (
	"context"
	"encoding/json"
	"os"
	"sort"

	"github.com/bradenrollio/easycal-sub000/internal/outfmt"
	"github.com/bradenrollio/easycal-sub000/internal/ui"
)

// localChanges names the writes that --dry-run short-circuits. Commands
// that call GoHighLevel preview their own requests instead.
var localChanges = map[string]string{
	"auth.add":     "authorize a location and store its grant",
	"auth.remove":  "delete a stored location grant",
	"brand.set":    "save the location's brand configuration",
	"config.set":   "write a config key",
	"config.unset": "clear a config key",
	"defaults.set": "save the location's calendar defaults",
}

// dryRunExit stops a command before a local write when --dry-run is set,
// printing the change that would have been made. The returned ExitError
// carries code 0.
func dryRunExit(ctx context.Context, flags *RootFlags, op string, change any) error {
	if flags == nil || !flags.DryRun {
		return nil
	}

	done := &ExitError{Code: 0}

	switch {
	case outfmt.IsJSON(ctx):
		// --select and --results-only target command output, not previews.
		plain := outfmt.WithJSONTransform(ctx, outfmt.JSONTransform{})
		_ = outfmt.WriteJSON(plain, os.Stdout, map[string]any{
			"dryRun": true,
			"op":     op,
			"change": change,
		})
	case outfmt.IsPlain(ctx):
		_ = outfmt.WriteTSV(os.Stdout, nil, changeFields(op, change))
	default:
		u := ui.FromContext(ctx)
		u.Out().Printf("Dry run: would %s (%s)", describeChange(op), op)
		if b, err := json.MarshalIndent(change, "", "  "); err == nil && change != nil {
			u.Out().Println(string(b))
		}
	}

	return done
}

func describeChange(op string) string {
	if label, ok := localChanges[op]; ok {
		return label
	}
	return op
}

// changeFields flattens a preview into key/value rows. Map changes get one
// row per key in sorted order; anything else is a single JSON row.
func changeFields(op string, change any) [][]string {
	rows := [][]string{{"dry_run", "true"}, {"op", op}}

	switch c := change.(type) {
	case nil:
	case map[string]any:
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rows = append(rows, []string{k, cellValue(c[k])})
		}
	default:
		rows = append(rows, []string{"change_json", cellValue(c)})
	}

	return rows
}

func cellValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
