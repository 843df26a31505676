package cli

import (
	"fmt"
	"time"

	"github.com/dropwire-io/dropwire/internal/files"
	"github.com/dropwire-io/dropwire/internal/viewmodel"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:     "send <file...>",
	Aliases: []string{"s"},
	Short:   "Create an offer, connect, and send files",
	Args:    cobra.MinimumNArgs(1),
	Long: `send is "offer" plus the file transfer: it creates the offer, walks
through the same paste-the-answer handshake, then pushes every given file
to the peer and renders live progress until the batch finishes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOffer(args)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	addICEFlags(sendCmd)
}

// sendAndReport validates paths, enqueues them on an already-connected
// session, and blocks rendering progress until the batch is done.
func sendAndReport(s *viewmodel.Session, paths []string) error {
	infos, err := files.ValidateFiles(paths)
	if err != nil {
		return err
	}
	displaySendTable(infos)

	if err := s.SendFiles(paths); err != nil {
		return fmt.Errorf("send files: %w", err)
	}

	started := time.Now()
	runUntilIdleAfterTransfers(s, "Sending", started)
	return nil
}
