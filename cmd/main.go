// Copyright (c) 2015-2025 Cask Contributors.
//
// This file is part of Cask Object Storage stack
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/minio/cli"
	"github.com/minio/pkg/v3/console"

	"github.com/cask-io/cask/pkg/probe"
)

// Help template for cask.
var caskHelpTemplate = `NAME:
  {{.Name}} - {{.Usage}}

USAGE:
  {{.Name}} {{if .VisibleFlags}}[FLAGS] {{end}}COMMAND{{if .VisibleFlags}} [COMMAND FLAGS | -h]{{end}} [ARGUMENTS...]

COMMANDS:
  {{range .VisibleCommands}}{{join .Names ", "}}{{ "\t" }}{{.Usage}}
  {{end}}{{if .VisibleFlags}}
GLOBAL FLAGS:
  {{range .VisibleFlags}}{{.}}
  {{end}}{{end}}
VERSION:
  ` + Version + `{{ "\n"}}`

var appCmds = []cli.Command{
	serverCmd,
	versionCmd,
}

// Main starts cask application.
func Main() {
	probe.Init() // Set project's root source path.
	probe.SetAppInfo("Release-Tag", ReleaseTag)
	probe.SetAppInfo("Commit", ShortCommitID)

	app := registerApp()
	app.Before = registerBefore
	app.RunAndExitOnError()
}

func registerBefore(ctx *cli.Context) error {
	// Set global flags.
	return setGlobalsFromContext(ctx)
}

// Function invoked when an invalid command is passed.
func commandNotFound(ctx *cli.Context, command string) {
	msg := fmt.Sprintf("`%s` is not a cask command. See `cask --help`.", command)
	fatalIf(errDummy().Trace(command), msg)
}

func registerApp() *cli.App {
	cli.HelpFlag = cli.BoolFlag{
		Name:  "help, h",
		Usage: "show help",
	}

	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Action = func(ctx *cli.Context) error {
		if ctx.Args().First() != "" {
			commandNotFound(ctx, ctx.Args().First())
			return exitStatus(globalErrorExitStatus)
		}
		cli.ShowAppHelp(ctx)
		return nil
	}

	app.Usage = "S3 compatible object storage server"
	app.Commands = appCmds
	app.Author = "Cask Contributors"
	app.Version = ReleaseTag
	app.Flags = globalFlags
	app.CustomAppHelpTemplate = caskHelpTemplate
	app.CommandNotFound = commandNotFound // handler function declared above.
	app.EnableBashCompletion = true

	sort.Sort(byCommandName(app.Commands))
	return app
}

type byCommandName []cli.Command

func (c byCommandName) Len() int           { return len(c) }
func (c byCommandName) Swap(i, j int)      { c[i], c[j] = c[j], c[i] }
func (c byCommandName) Less(i, j int) bool { return c[i].Name < c[j].Name }

// Print version.
var versionCmd = cli.Command{
	Name:   "version",
	Usage:  "show version info",
	Action: mainVersion,
	Before: setGlobalsFromContext,
	CustomHelpTemplate: `NAME:
  {{.HelpName}} - {{.Usage}}

USAGE:
  {{.HelpName}}
`,
}

func mainVersion(_ *cli.Context) error {
	if globalQuiet {
		return nil
	}
	console.Println("Version: " + Version)
	console.Println("Release-tag: " + ReleaseTag)
	console.Println("Commit-id: " + CommitID)
	return nil
}
