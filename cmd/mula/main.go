// Command mula is the HeartMuLa service manager.
//
// It builds the HeartMuLa runtime image variants, downloads model weights
// and runs service instances in Docker containers. Most subcommands talk
// to the mula daemon ('mula serve') over HTTP.
package main

import (
	"os"

	"github.com/heartmula/mula/cmd/mula/app"
)

func main() {
	cmd := app.NewMulaCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
