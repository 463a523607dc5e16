// Command callguard validates call-guard configuration and exercises
// configured guards under simulated load.
package main

import "github.com/vinayprograms/callguard/cmd/callguard/cmd"

func main() {
	cmd.Execute()
}
