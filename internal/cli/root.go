/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package cli wires the layout editor, the local draft and the backend into the
// sitebuilder command line. Every editing command is one discrete user action:
// it applies the change, commits it to history and persists draft and journal.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sitebuilder/internal/config"
	applog "sitebuilder/internal/log"
	"sitebuilder/internal/telemetry"
)

// App carries flags and per-invocation state shared by all commands.
type App struct {
	Dir  string
	JSON bool

	cfg   config.AppConfig
	token string
	tel   *telemetry.Client
	log   *slog.Logger
}

// Execute builds the root command and runs it with args. Telemetry is flushed and
// the log file closed on every path, failing commands included.
func Execute(args []string, stdout, stderr io.Writer) error {
	cmd, app := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	defer app.teardown(context.Background())
	return cmd.Execute()
}

func newRootCmd() (*cobra.Command, *App) {
	app := &App{}

	cmd := &cobra.Command{
		Use:           "sitebuilder",
		Short:         "Arrange website builder elements with undo/redo and sync them to the layout API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Start a draft in the current directory, or fetch the stored layout
  sitebuilder init
  sitebuilder pull

  # Edit
  sitebuilder add section
  sitebuilder add text --content "Welcome"
  sitebuilder reorder 1 0
  sitebuilder move element-2 40 120
  sitebuilder undo

  # Save to the backend (PUT /layout)
  sitebuilder push
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.setup(cmd)
	}

	cmd.PersistentFlags().StringVar(&app.Dir, "dir", envOr("SB_DIR", "."), "Draft directory holding layout.json")
	cmd.PersistentFlags().BoolVar(&app.JSON, "json", false, "Print machine-readable JSON")

	cmd.AddCommand(newVersionCmd(app))
	cmd.AddCommand(newInitCmd(app))
	cmd.AddCommand(newPullCmd(app))
	cmd.AddCommand(newPushCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newHistoryCmd(app))
	cmd.AddCommand(newAddCmd(app))
	cmd.AddCommand(newRemoveCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newReorderCmd(app))
	cmd.AddCommand(newMoveCmd(app))
	cmd.AddCommand(newNudgeCmd(app))
	cmd.AddCommand(newUnpinCmd(app))
	cmd.AddCommand(newUndoCmd(app))
	cmd.AddCommand(newRedoCmd(app))
	cmd.AddCommand(newConfigCmd(app))

	return cmd, app
}

// setup loads configuration, configures logging and installs the telemetry client.
func (app *App) setup(cmd *cobra.Command) error {
	cfg, tok, err := config.Load()
	if err != nil {
		return err
	}
	app.cfg, app.token = cfg, tok
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	app.log = applog.WithComponent("cli")
	app.installTelemetry("")
	cmd.SetContext(applog.WithDraft(cmd.Context(), app.Dir))
	app.log.Debug("start", slog.String("cmd", cmd.CommandPath()), slog.String("dir", app.Dir))
	return nil
}

func (app *App) installTelemetry(session string) {
	tc := telemetry.FromEnv()
	tc.OptIn = tc.OptIn || app.cfg.General.TelemetryOptIn
	tc.Session = session
	app.tel = telemetry.Install(tc)
}

func (app *App) teardown(ctx context.Context) {
	if app.tel != nil {
		app.tel.Flush(ctx)
		app.tel.Close()
	}
	_ = applog.Close()
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// writeOut prints v as a {"data": v} envelope in JSON mode, otherwise text.
func writeOut(cmd *cobra.Command, app *App, v any, text string) error {
	if app.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"data": v})
	}
	_, err := fmt.Fprint(cmd.OutOrStdout(), text)
	return err
}
