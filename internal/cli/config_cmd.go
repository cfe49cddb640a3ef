// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - "weighdesk config": inspect and edit settings.
//
//	weighdesk config [show]        effective settings (file + environment)
//	weighdesk config path          the file that is read and written
//	weighdesk config get KEY       one effective value
//	weighdesk config set KEY VALUE update the file
//	weighdesk config keys          list every key

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/jeranaias/weighdesk-tui/internal/config"
)

// HandleConfig runs the config command.
func HandleConfig(env *Env) error {
	p := env.Args.Parser()

	switch p.Subcommand() {
	case "", "show":
		return configShow(env)
	case "path":
		return configPath(env)
	case "get":
		return configGet(env, p)
	case "set":
		return configSet(env, p)
	case "keys":
		return configKeys(env)
	default:
		return &ValidationError{
			Field:   "config subcommand",
			Value:   p.Subcommand(),
			Reason:  "unknown",
			Example: "weighdesk config set session.warning_window_secs 180",
		}
	}
}

func configShow(env *Env) error {
	if env.Args.JSON {
		_, err := fmt.Fprintln(env.Out, env.Config.String())
		return err
	}
	path, err := config.ActivePath()
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Out, DimStyle.Render("# "+path))
	return toml.NewEncoder(env.Out).Encode(env.Config)
}

func configPath(env *Env) error {
	path, err := config.ActivePath()
	if err != nil {
		return err
	}
	if env.Args.JSON {
		_, statErr := os.Stat(path)
		return json.NewEncoder(env.Out).Encode(map[string]interface{}{
			"path":   path,
			"exists": statErr == nil,
		})
	}
	_, err = fmt.Fprintln(env.Out, path)
	return err
}

func configGet(env *Env, p *ArgParser) error {
	key := p.Positional(1)
	if key == "" {
		return ErrMissingArgument("KEY", "weighdesk config get server.base_url")
	}
	value, err := env.Config.Get(key)
	if err != nil {
		return &NotFoundError{Resource: "config key", ID: key}
	}
	if env.Args.JSON {
		return json.NewEncoder(env.Out).Encode(map[string]interface{}{"key": key, "value": value})
	}
	_, err = fmt.Fprintln(env.Out, value)
	return err
}

func configSet(env *Env, p *ArgParser) error {
	key := p.Positional(1)
	if key == "" || p.PositionalCount() < 3 {
		return ErrMissingArgument("KEY VALUE", "weighdesk config set server.base_url https://scale.example.com/api")
	}
	value := strings.Join(p.PositionalFrom(2), " ")

	path, err := config.ActivePath()
	if err != nil {
		return err
	}

	if strings.HasSuffix(key, ".enabled") {
		b, err := ParseBoolString(value)
		if err != nil {
			return &ValidationError{Field: key, Value: value, Reason: "must be true or false"}
		}
		value = fmt.Sprint(b)
	}

	err = config.Update(path, func(cfg *config.Config) error {
		if _, err := cfg.Get(key); err != nil {
			return &NotFoundError{Resource: "config key", ID: key}
		}
		if err := cfg.Set(key, value); err != nil {
			return &ValidationError{Field: key, Value: value, Reason: err.Error()}
		}
		return nil
	})
	var verrs config.ValidateErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ValidationError{Field: verrs[0].Field, Value: value, Reason: verrs[0].Message}
	}
	if err != nil {
		return err
	}
	env.Log.Info("config updated", zap.String("key", key), zap.String("path", path))

	if env.Args.JSON {
		return json.NewEncoder(env.Out).Encode(map[string]interface{}{"success": true, "key": key, "path": path})
	}
	fmt.Fprintf(env.Out, "%s %s = %s\n", RenderStatus("ok"), key, value)
	return nil
}

func configKeys(env *Env) error {
	keys := config.GetAllKeys()
	if env.Args.JSON {
		return json.NewEncoder(env.Out).Encode(keys)
	}
	for _, k := range keys {
		fmt.Fprintln(env.Out, k)
	}
	return nil
}
