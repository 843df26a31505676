package cli

import (
	"fmt"

	"github.com/dropwire-io/dropwire/internal/ui"
	"github.com/spf13/cobra"
)

var offerCmd = &cobra.Command{
	Use:   "offer",
	Short: "Start a handshake as the initiator and print the offer string",
	Long: `offer creates a WebRTC offer, waits for non-trickle ICE gathering to
finish, and prints the resulting signal string. Relay it to the peer
yourself (no signaling server is involved), then paste back the answer
string they send you with "dropwire answer".

offer only establishes the connection; use "dropwire send" if you also want
to push files once connected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOffer(nil)
	},
}

func init() {
	rootCmd.AddCommand(offerCmd)
	addICEFlags(offerCmd)
}

// runOffer drives the initiator side of the handshake and returns an error
// if it fails. If files is non-empty it then sends them on the connected
// session (send.go's path); offerCmd itself just prints success and returns.
func runOffer(files []string) error {
	s := newSession(".")

	stop := ui.RunConnectionSpinner("creating offer...")
	if err := s.CreateOffer(); err != nil {
		stop()
		return fmt.Errorf("create offer: %w", err)
	}

	signal, err := waitForSignalReady(s)
	stop()
	if err != nil {
		return fmt.Errorf("gather ICE candidates: %w", err)
	}

	ui.RenderSignalBox("your offer — send this to the peer", signal)

	answer, err := readLine("\npaste the peer's answer: ")
	if err != nil {
		return fmt.Errorf("read answer: %w", err)
	}

	stop = ui.RunWaitingSpinner("waiting for connection...")
	if err := s.AcceptAnswer(answer); err != nil {
		stop()
		return fmt.Errorf("accept answer: %w", err)
	}
	err = waitForConnected(s)
	stop()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	ui.RenderConnected()

	if len(files) == 0 {
		return nil
	}
	return sendAndReport(s, files)
}
