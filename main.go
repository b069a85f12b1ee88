// The main package for the location-crawler executable.
package main

import (
	"github.com/JakeFAU/location-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
