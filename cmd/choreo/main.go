// Command choreo runs step workers for routing-slip pipelines and provides
// the producer and administrative entry points.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "choreo:", err)
		os.Exit(1)
	}
}
