// Package cli wires cobra subcommands onto the viewmodel.Session, standing
// in for the "UI shell" collaborator spec.md's View-Model Adapter is
// written to drive. See SPEC_FULL.md §9.3.
package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "dropwire",
	Short:   "Peer-to-peer file and chat transfer over WebRTC, no signaling server",
	Long: `dropwire moves files and chat messages directly between two peers over a
WebRTC data channel. There is no signaling server: the offer and answer are
compact strings you relay to the other side yourself (paste, QR code,
whatever out-of-band channel you already have open).`,
	Version: "0.1.0",
}

// Execute runs the root command, following the teacher's root.go signal
// handling: a bare Ctrl-C prints the signal name and exits with status 0
// immediately; open peer connections are not closed first.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		for s := range sig {
			fmt.Println(s.String())
			os.Exit(0)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var flagSTUN []string

// addICEFlags adds only a STUN override, per spec.md §6: no TURN relay.
func addICEFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&flagSTUN, "stun", nil, "STUN server URL, repeatable (default: dropwire's built-in list)")
}
