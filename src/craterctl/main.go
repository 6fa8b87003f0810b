// craterctl is the command-line client for the craterd API.
package main

import (
	"github.com/craterbuild/crater/src/craterctl/internal/cmd"
)

func main() {
	cmd.Execute()
}
