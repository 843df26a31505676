package cli

import (
	"fmt"
	"time"

	"github.com/dropwire-io/dropwire/internal/transfer"
	"github.com/dropwire-io/dropwire/internal/ui"
	"github.com/dropwire-io/dropwire/internal/viewmodel"
	"github.com/spf13/cobra"
)

var flagOutDir string

var listenCmd = &cobra.Command{
	Use:     "listen [offer]",
	Aliases: []string{"l"},
	Short:   "Accept an offer, connect, and receive files and chat",
	Args:    cobra.MaximumNArgs(1),
	Long: `listen is "answer" plus the receive loop: it walks through the same
paste-the-offer handshake, then blocks printing incoming chat messages and
saving every completed inbound file to --out (default: current directory)
until interrupted with Ctrl-C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		offer, err := offerArgOrPrompt(args)
		if err != nil {
			return err
		}
		s, err := runAnswer(offer, flagOutDir)
		if err != nil {
			return err
		}
		return receiveLoop(s)
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)
	addICEFlags(listenCmd)
	listenCmd.Flags().StringVarP(&flagOutDir, "out", "o", ".", "directory to save received files into")
}

// receiveLoop polls the session, printing new chat messages and rendering
// a progress UI for whichever receive-direction transfers are in flight. It
// runs until the process is interrupted (root.Execute's SIGINT handler).
func receiveLoop(s *viewmodel.Session) error {
	fmt.Println()
	ui.PrintInfo("listening — Ctrl-C to stop")

	tui := ui.NewTransferUI("Receiving", func(id string) { _ = s.CancelTransfer(id) })
	tui.Start()
	defer tui.Stop()

	printedMessages := 0
	for {
		snap := s.Snapshot()

		for _, msg := range snap.Messages[printedMessages:] {
			printChatMessage(msg)
		}
		printedMessages = len(snap.Messages)

		inbound := filterDirection(snap.Transfers, transfer.DirectionReceive)
		if len(inbound) > 0 {
			tui.Update(inbound)
		}

		time.Sleep(100 * time.Millisecond)
	}
}

func printChatMessage(msg transfer.ChatMessage) {
	who := "peer"
	if msg.Sender == transfer.SenderMe {
		who = "me"
	}
	fmt.Printf("\n[%s] %s\n", who, msg.Text)
}

func filterDirection(transfers []*transfer.FileTransfer, dir transfer.Direction) []*transfer.FileTransfer {
	out := make([]*transfer.FileTransfer, 0, len(transfers))
	for _, ft := range transfers {
		if ft.Direction == dir {
			out = append(out, ft)
		}
	}
	return out
}
