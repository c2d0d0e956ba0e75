// The main package for the listing-crawler executable.
package main

import (
	"os"

	"github.com/JakeFAU/listing-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	os.Exit(cmd.Execute())
}
