// Command spotify-now-playing shows what a Spotify user is listening to.
package main

import (
	"fmt"
	"os"

	"github.com/justestif/go-spotify-now-playing/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
