// Command xs is an append-only local record store.
package main

import (
	"os"

	"github.com/kilupskalvis/xs/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
