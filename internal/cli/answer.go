package cli

import (
	"fmt"

	"github.com/dropwire-io/dropwire/internal/ui"
	"github.com/dropwire-io/dropwire/internal/viewmodel"
	"github.com/spf13/cobra"
)

var answerCmd = &cobra.Command{
	Use:   "answer [offer]",
	Short: "Accept an offer as the responder and print the answer string",
	Args:  cobra.MaximumNArgs(1),
	Long: `answer decodes an offer string (given as an argument, or pasted at a
prompt if omitted), builds the responder side of the connection, and prints
the answer string to relay back to the initiator.

answer only establishes the connection; use "dropwire listen" if you also
want to receive files once connected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		offer, err := offerArgOrPrompt(args)
		if err != nil {
			return err
		}
		_, err = runAnswer(offer, "")
		return err
	},
}

func init() {
	rootCmd.AddCommand(answerCmd)
	addICEFlags(answerCmd)
}

func offerArgOrPrompt(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return readLine("paste the peer's offer: ")
}

// runAnswer drives the responder side of the handshake and returns the
// connected session so listen.go can take over receiving.
func runAnswer(offer, outDir string) (*viewmodel.Session, error) {
	s := newSession(outDir)

	stop := ui.RunConnectionSpinner("accepting offer...")
	if err := s.AcceptOffer(offer); err != nil {
		stop()
		return nil, fmt.Errorf("accept offer: %w", err)
	}

	answer, err := waitForSignalReady(s)
	stop()
	if err != nil {
		return nil, fmt.Errorf("gather ICE candidates: %w", err)
	}

	ui.RenderSignalBox("your answer — send this back to the peer", answer)

	stop = ui.RunWaitingSpinner("waiting for connection...")
	err = waitForConnected(s)
	stop()
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	ui.RenderConnected()
	return s, nil
}
