// The main package for the naracrawl executable.
package main

import (
	"github.com/naramarket/crawler/cmd"
)

func main() {
	cmd.Execute()
}
