// Command streamyara is a thin demonstration CLI over the streamyara
// scanning library: it feeds stdin or a file into a Scanner line by line
// or chunk by chunk and reports which rules match.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
