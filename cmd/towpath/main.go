// Command towpath is the CLI entry point.
package main

import (
	"os"

	"github.com/towpath-run/towpath/internal/cmd"
	_ "github.com/towpath-run/towpath/internal/steps/shellstep"
)

var version = "dev"

func main() {
	os.Exit(cmd.Execute(version))
}
