package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/bradenrollio/easycal-sub000/internal/config"
	"github.com/bradenrollio/easycal-sub000/internal/outfmt"
)

const keyClientSecret = "client_secret"

type ConfigCmd struct {
	Get   ConfigGetCmd   `cmd:"" aliases:"show" help:"Get a config value"`
	Keys  ConfigKeysCmd  `cmd:"" aliases:"list-keys,names" help:"List available config keys"`
	Set   ConfigSetCmd   `cmd:"" aliases:"add,update" help:"Set a config value"`
	Unset ConfigUnsetCmd `cmd:"" aliases:"rm,del,remove" help:"Unset a config value"`
	List  ConfigListCmd  `cmd:"" aliases:"ls,all" help:"List all config values"`
	Path  ConfigPathCmd  `cmd:"" aliases:"where" help:"Print config file path"`
}

type ConfigGetCmd struct {
	Key string `arg:"" help:"Config key to get (see: easycal config keys)"`
}

func (c *ConfigGetCmd) Run(ctx context.Context) error {
	cfg, err := config.Read()
	if err != nil {
		return err
	}

	value, err := cfg.Get(c.Key)
	if err != nil {
		return newUsageError(err)
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"key": c.Key, "value": value})
	}
	fmt.Fprintln(os.Stdout, formatConfigValue(value))
	return nil
}

type ConfigKeysCmd struct{}

func (c *ConfigKeysCmd) Run(ctx context.Context) error {
	keys := config.Keys()
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"keys": keys})
	}
	for _, key := range keys {
		fmt.Fprintln(os.Stdout, key)
	}
	return nil
}

type ConfigSetCmd struct {
	Key   string `arg:"" help:"Config key to set"`
	Value string `arg:"" help:"Value to set"`
}

func (c *ConfigSetCmd) Run(ctx context.Context, flags *RootFlags) error {
	return writeConfigValue(ctx, flags, "config.set", c.Key, c.Value)
}

type ConfigUnsetCmd struct {
	Key string `arg:"" help:"Config key to unset"`
}

func (c *ConfigUnsetCmd) Run(ctx context.Context, flags *RootFlags) error {
	return writeConfigValue(ctx, flags, "config.unset", c.Key, "")
}

func writeConfigValue(ctx context.Context, flags *RootFlags, op, key, value string) error {
	cfg, err := config.Read()
	if err != nil {
		return err
	}

	if err := cfg.Set(key, value); err != nil {
		return newUsageError(err)
	}

	shown := value
	if key == keyClientSecret && shown != "" {
		shown = "(redacted)"
	}
	if err := dryRunExit(ctx, flags, op, map[string]any{"key": key, "value": shown}); err != nil {
		return err
	}

	if err := config.Write(cfg); err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		payload := map[string]any{"key": key, "value": shown}
		if value == "" {
			payload["removed"] = true
		} else {
			payload["saved"] = true
		}
		return outfmt.WriteJSON(ctx, os.Stdout, payload)
	}
	if value == "" {
		fmt.Fprintf(os.Stdout, "Unset %s\n", key)
		return nil
	}
	fmt.Fprintf(os.Stdout, "Set %s = %s\n", key, shown)
	return nil
}

type ConfigListCmd struct{}

func (c *ConfigListCmd) Run(ctx context.Context) error {
	cfg, err := config.Read()
	if err != nil {
		return err
	}

	path, _ := config.ConfigPath()
	keys := config.Keys()
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		v, _ := cfg.Get(key)
		if key == keyClientSecret && v != "" {
			v = "(set)"
		}
		values[key] = v
	}

	if outfmt.IsJSON(ctx) {
		payload := map[string]any{"path": path}
		for k, v := range values {
			payload[k] = v
		}
		return outfmt.WriteJSON(ctx, os.Stdout, payload)
	}

	fmt.Fprintf(os.Stdout, "Config file: %s\n", path)
	for _, key := range keys {
		fmt.Fprintf(os.Stdout, "%s: %s\n", key, formatConfigValue(values[key]))
	}
	return nil
}

type ConfigPathCmd struct{}

func (c *ConfigPathCmd) Run(ctx context.Context) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"path": path})
	}
	fmt.Fprintln(os.Stdout, path)
	return nil
}

func formatConfigValue(value string) string {
	if value != "" {
		return value
	}
	return "(not set)"
}
