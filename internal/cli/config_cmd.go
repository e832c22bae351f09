/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sitebuilder/internal/config"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the user configuration",
	}
	cmd.AddCommand(newConfigShowCmd(app))
	cmd.AddCommand(newConfigInitCmd(app))
	cmd.AddCommand(newConfigSetTokenCmd(app))
	return cmd
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration and where overrides come from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ConfigPath()
			if err != nil {
				return err
			}
			overrides := map[string]string{}
			for _, k := range config.OverridableKeys() {
				if env, ok := config.EnvOverrideFor(k); ok {
					overrides[k] = env
				}
			}
			data, err := yaml.Marshal(app.cfg)
			if err != nil {
				return err
			}
			var b strings.Builder
			fmt.Fprintf(&b, "# file: %s\n", path)
			for _, k := range config.OverridableKeys() {
				if env, ok := overrides[k]; ok {
					fmt.Fprintf(&b, "# %s overridden by %s\n", k, env)
				}
			}
			b.Write(data)
			fmt.Fprintf(&b, "# backend token: %s\n", tokenState(app.token))
			return writeOut(cmd, app, map[string]any{
				"path":      path,
				"config":    app.cfg,
				"overrides": overrides,
				"tokenSet":  app.token != "",
			}, b.String())
		},
	}
}

func tokenState(tok string) string {
	switch {
	case tok == "":
		return "not set"
	case os.Getenv(config.EnvBackendToken) != "":
		return "set (" + config.EnvBackendToken + ")"
	default:
		return "set (keychain)"
	}
}

func newConfigInitCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config file %s already exists", path)
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Save(config.Defaults(), ""); err != nil {
				return err
			}
			return writeOut(cmd, app, map[string]any{"path": path}, fmt.Sprintf("Wrote %s\n", path))
		},
	}
}

func newConfigSetTokenCmd(app *App) *cobra.Command {
	var del bool
	cmd := &cobra.Command{
		Use:   "set-token [token]",
		Short: "Store the backend bearer token in the OS keychain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if del {
				if err := config.DeleteToken(); err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"tokenSet": false}, "Token removed\n")
			}
			if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
				return errors.New("set-token requires a token (or --delete)")
			}
			if err := config.SaveToken(strings.TrimSpace(args[0])); err != nil {
				return err
			}
			return writeOut(cmd, app, map[string]any{"tokenSet": true}, "Token stored in keychain\n")
		},
	}
	cmd.Flags().BoolVar(&del, "delete", false, "Remove the stored token")
	return cmd
}
