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
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/minio/cli"
	"github.com/minio/pkg/v3/console"
	"github.com/minio/pkg/v3/env"

	"github.com/cask-io/cask/pkg/probe"
)

var serverFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "address",
		Value:  globalDefaultAddress,
		Usage:  "bind to a specific ADDRESS:PORT",
		EnvVar: "CASK_ADDRESS",
	},
	cli.StringFlag{
		Name:   "region",
		Value:  globalDefaultRegion,
		Usage:  "region echoed in credential scopes and bucket locations",
		EnvVar: "CASK_REGION",
	},
	cli.StringFlag{
		Name:   "max-body-size",
		Value:  globalDefaultMaxBodySize,
		Usage:  "largest accepted request body",
		EnvVar: "CASK_MAX_BODY_SIZE",
	},
}

var serverCmd = cli.Command{
	Name:   "server",
	Usage:  "start the object storage server",
	Action: mainServer,
	Before: setGlobalsFromContext,
	Flags:  append(serverFlags, globalFlags...),
	CustomHelpTemplate: `NAME:
  {{.HelpName}} - {{.Usage}}

USAGE:
  {{.HelpName}} [FLAGS] DIR

DIR:
  DIR points to a directory on a filesystem; objects, the multipart
  scratch area and the bucket catalog are stored under it.

FLAGS:
  {{range .VisibleFlags}}{{.}}
  {{end}}
EXAMPLES:
  1. Start the server on the default port:
     {{.Prompt}} {{.HelpName}} /mnt/data

  2. Start the server on localhost port 9378:
     {{.Prompt}} {{.HelpName}} --address 127.0.0.1:9378 /mnt/data
`,
}

// bootstrapRootCredentials ensures the root user and its access key
// exist. The key pair comes from CASK_ROOT_USER / CASK_ROOT_PASSWORD,
// defaulting to caskadmin/caskadmin.
func bootstrapRootCredentials(cat *catalog) error {
	accessKey := env.Get("CASK_ROOT_USER", "caskadmin")
	secretKey := env.Get("CASK_ROOT_PASSWORD", "caskadmin")

	if _, ok, err := cat.GetUser("root"); err != nil {
		return err
	} else if !ok {
		if err := cat.PutUser(catalogUser{ID: "root", Name: accessKey, CreatedAt: UTCNow()}); err != nil {
			return err
		}
	}
	return cat.PutAccessKey(catalogAccessKey{
		AccessKey: accessKey,
		SecretKey: secretKey,
		UserID:    "root",
	})
}

func mainServer(ctx *cli.Context) error {
	if len(ctx.Args()) != 1 {
		cli.ShowCommandHelpAndExit(ctx, "server", globalErrorExitStatus)
	}
	dir := ctx.Args().First()

	maxBodySize, e := humanize.ParseBytes(ctx.String("max-body-size"))
	fatalIf(probe.NewError(e).Trace(ctx.String("max-body-size")), "Unable to parse max body size.")

	cat, e := openCatalog(filepath.Join(dir, "catalog.db"))
	fatalIf(probe.NewError(e).Trace(dir), "Unable to open the bucket catalog.")
	defer cat.Close()

	e = bootstrapRootCredentials(cat)
	fatalIf(probe.NewError(e), "Unable to bootstrap root credentials.")

	objects, e := newFSStore(filepath.Join(dir, "buckets"))
	fatalIf(probe.NewError(e).Trace(dir), "Unable to initialize the object store.")

	multipart, e := newMultipartStore(filepath.Join(dir, "multipart"), objects)
	fatalIf(probe.NewError(e).Trace(dir), "Unable to initialize the multipart store.")

	api := &apiHandlers{
		catalog:     cat,
		creds:       newCredentialCache(cat),
		objects:     objects,
		multipart:   multipart,
		region:      ctx.String("region"),
		maxBodySize: int64(maxBodySize),
	}

	address := ctx.String("address")
	srv := &http.Server{
		Addr:    address,
		Handler: newServerHandler(api),
	}

	if !globalQuiet {
		console.Infoln("Cask object storage server")
		console.Infoln("Listening on " + address)
		console.Infoln("Data directory: " + dir)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case e = <-errCh:
		fatalIf(probe.NewError(e).Trace(address), "Unable to serve on the requested address.")
	case sig := <-sigCh:
		if !globalQuiet {
			console.Infoln("Received signal " + sig.String() + ", shutting down.")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if e = srv.Shutdown(shutdownCtx); e != nil {
			errorIf(probe.NewError(e), "Forced shutdown after timeout.")
		}
	}
	return nil
}
