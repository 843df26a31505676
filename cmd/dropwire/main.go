// Command dropwire is the terminal entry point for the peer-to-peer file
// and chat transfer system SPEC_FULL.md describes.
package main

import (
	"github.com/dropwire-io/dropwire/internal/cli"
	"github.com/dropwire-io/dropwire/internal/logging"
)

func main() {
	logging.Init()
	cli.Execute()
}
