package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dropwire-io/dropwire/internal/config"
	"github.com/dropwire-io/dropwire/internal/files"
	"github.com/dropwire-io/dropwire/internal/peer"
	"github.com/dropwire-io/dropwire/internal/transfer"
	"github.com/dropwire-io/dropwire/internal/ui"
	"github.com/dropwire-io/dropwire/internal/viewmodel"
)

func loadConfig() *config.Config {
	return config.Load(config.Options{
		STUNServers: flagSTUN,
	})
}

// newSession constructs a viewmodel.Session wired to save every completed
// inbound file under outDir (ignored for sender-side sessions, which never
// receive files from the peer they're sending to... unless the peer also
// sends something back, which this spec's bidirectional channel permits).
func newSession(outDir string) *viewmodel.Session {
	return viewmodel.New(loadConfig(), nil, nil, func(rf transfer.ReceivedFile) {
		if err := saveReceivedFile(outDir, rf); err != nil {
			ui.PrintErrorf("failed to save %s: %v", rf.Name, err)
			return
		}
		ui.PrintSuccessf("received %s", rf.Name)
	})
}

func saveReceivedFile(dir string, rf transfer.ReceivedFile) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := uniquePath(dir, rf.Name)
	return os.WriteFile(path, rf.Data, 0o644)
}

// uniquePath appends " (n)" before the extension if name already exists in
// dir, so a second transfer of the same filename never clobbers the first.
func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// waitFor polls the session's reactive snapshot until pred reports done, an
// error surfaces on ConnectionState, or timeout elapses. Polling rather than
// subscribing to a channel keeps the CLI layer free of the event-ordering
// subtleties the view-model's own event loop already resolved.
func waitFor(s *viewmodel.Session, timeout time.Duration, pred func(viewmodel.Snapshot) bool) (viewmodel.Snapshot, error) {
	deadline := time.Now().Add(timeout)
	for {
		snap := s.Snapshot()
		if pred(snap) {
			return snap, nil
		}
		if snap.ConnectionState == peer.StateError {
			return snap, fmt.Errorf("%s", snap.Error)
		}
		if time.Now().After(deadline) {
			return snap, fmt.Errorf("timed out")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func waitForSignalReady(s *viewmodel.Session) (string, error) {
	snap, err := waitFor(s, 20*time.Second, func(snap viewmodel.Snapshot) bool {
		return snap.LocalSignal != ""
	})
	if err != nil {
		return "", err
	}
	return snap.LocalSignal, nil
}

func waitForConnected(s *viewmodel.Session) error {
	_, err := waitFor(s, 180*time.Second, func(snap viewmodel.Snapshot) bool {
		return snap.ConnectionState == peer.StateConnected
	})
	return err
}

// readLine prompts on stdout and reads one trimmed line from stdin.
func readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// runUntilIdleAfterTransfers drives the progress UI until every file in the
// batch reaches a terminal status, then renders the summary table.
func runUntilIdleAfterTransfers(s *viewmodel.Session, label string, started time.Time) {
	tui := ui.NewTransferUI(label, func(id string) { _ = s.CancelTransfer(id) })
	tui.Start()
	defer tui.Stop()

	for {
		snap := s.Snapshot()
		tui.Update(snap.Transfers)

		if allTerminal(snap.Transfers) {
			break
		}
		time.Sleep(80 * time.Millisecond)
	}

	renderSummary(s.Snapshot().Transfers, started)
}

func allTerminal(transfers []*transfer.FileTransfer) bool {
	if len(transfers) == 0 {
		return false
	}
	for _, ft := range transfers {
		switch ft.Status {
		case transfer.StatusCompleted, transfer.StatusCancelled, transfer.StatusError:
		default:
			return false
		}
	}
	return true
}

func renderSummary(transfers []*transfer.FileTransfer, started time.Time) {
	var totalSize int64
	completed := 0
	status := "completed"
	for _, ft := range transfers {
		totalSize += ft.Size
		if ft.Status == transfer.StatusCompleted {
			completed++
		} else {
			status = "partial"
		}
	}
	elapsed := time.Since(started)
	var speed float64
	if elapsed.Seconds() > 0 {
		speed = float64(totalSize) / elapsed.Seconds()
	}

	ui.RenderTransferSummary(ui.TransferSummary{
		Status:    status,
		Files:     len(transfers),
		TotalSize: totalSize,
		Duration:  elapsed,
		Speed:     speed,
	})
}

func displaySendTable(infos []files.FileInfo) {
	items := make([]ui.FileTableItem, len(infos))
	for i, f := range infos {
		items[i] = ui.FileTableItem{Index: i + 1, Name: f.Name, Size: f.Size, Type: f.Type}
	}
	ui.RenderFileTable(items, "Files to send")
}
