// The main package for the forumharvest executable.
package main

import (
	"github.com/archivist-tools/forumharvest/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
