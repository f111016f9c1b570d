// Command pylaunch runs Python projects and files, optionally under a debugger.
package main

import (
	"os"

	"github.com/jrepp/pylaunch/cmd/pylaunch/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
