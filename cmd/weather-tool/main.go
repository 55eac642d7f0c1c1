// weather-tool is a self-describing tool binary: --schema prints its input
// schema, --execute runs the mock weather capability.
package main

import (
	"os"

	"toolshim/internal/shim"
	"toolshim/internal/tooling"
)

func main() {
	os.Exit(shim.Run(&tooling.WeatherTool{}, os.Args, os.Stdout, os.Stderr))
}
