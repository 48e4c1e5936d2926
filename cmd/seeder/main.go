// cmd/seeder/main.go
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "draftdesk-seeder",
		Usage: "prepare the database, emit generated content and mint dev tokens",
		Commands: []*cli.Command{
			migrateCommand(),
			emitCommand(),
			tokenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
