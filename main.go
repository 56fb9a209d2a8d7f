// The main package for the crawlkit executable.
package main

import (
	"github.com/JakeFAU/crawlkit/cmd"
)

func main() {
	cmd.Execute()
}
