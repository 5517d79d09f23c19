// Command courtbillctl runs operator tasks against the invoicing database:
// migrations, on-demand dunning runs and manual invoice transitions.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
