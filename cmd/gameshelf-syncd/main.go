// gameshelf-syncd runs the GameShelf offline-first sync engine as a
// long-lived agent: it opens the local store, then schedules
// push-then-pull cycles against the configured sync server until
// interrupted.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
