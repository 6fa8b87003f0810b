// craterd is the Crater build orchestration server.
// It coordinates container image builds across a pool of remote hosts and
// doubles as the worker-side build runner ("craterd worker").
package main

import (
	"github.com/craterbuild/crater/src/craterd/core"
)

func main() {
	core.Execute()
}
