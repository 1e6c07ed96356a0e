// Command server runs the RecipeBox web app.
//
//	server            # same as "server serve"
//	server serve      # migrate, then serve HTTP until SIGINT/SIGTERM
//	server migrate    # apply database migrations and exit
//	server check-db   # ping the database and print its version
//
// All settings come from the environment (and .env / CONFIG_FILE); see
// internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// version is set at build time:
//
//	go build -ldflags "-X main.version=1.4.0" ./cmd/server
var version = "dev"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
