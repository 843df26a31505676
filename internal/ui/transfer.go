package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dropwire-io/dropwire/internal/files"
	"github.com/dropwire-io/dropwire/internal/transfer"
)

// tickMsg drives the progress bars' own fill animation; it carries no
// transfer data of its own.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// TransferUI renders a live multi-file progress view. Unlike the bytes-in/
// bytes-out tracking the teacher's runner.go did itself, this model never
// computes a transfer's progress, speed, or ETA: it renders those from the
// transfer.FileTransfer snapshots the Transfer Engine already computed. The
// only figures it derives are the overall percentage and byte totals,
// aggregated from the per-file sizes and progress values.
type TransferUI struct {
	program    *tea.Program
	model      *transferModel
	updateChan chan []*transfer.FileTransfer
	wg         sync.WaitGroup
}

type transferModel struct {
	label      string
	state      string
	updateChan chan []*transfer.FileTransfer
	order      []string
	items      map[string]*transfer.FileTransfer
	bars       map[string]*progress.Model
	spinner    spinner.Model
	mu         sync.RWMutex
	quitting   bool
	cancelFn   func(id string)
}

// NewTransferUI creates a progress UI. label is "Sending" or "Receiving".
// cancelFn, if non-nil, is invoked with a transfer's id when the user
// presses a number key matching its position to cancel it.
func NewTransferUI(label string, cancelFn func(id string)) *TransferUI {
	updateChan := make(chan []*transfer.FileTransfer, 32)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	model := &transferModel{
		label:      label,
		state:      "starting",
		updateChan: updateChan,
		items:      make(map[string]*transfer.FileTransfer),
		bars:       make(map[string]*progress.Model),
		spinner:    s,
		cancelFn:   cancelFn,
	}

	return &TransferUI{model: model, updateChan: updateChan}
}

// Start runs the bubbletea program inline (no alt screen), so prior output
// such as the file table stays visible above it.
func (ui *TransferUI) Start() {
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		ui.program = tea.NewProgram(ui.model)
		if _, err := ui.program.Run(); err != nil {
			fmt.Printf("ui error: %v\n", err)
		}
	}()
}

// Update pushes the latest transfer snapshot to the running program.
func (ui *TransferUI) Update(transfers []*transfer.FileTransfer) {
	select {
	case ui.updateChan <- transfers:
	default:
	}
}

// Stop quits the program and waits for it to exit.
func (ui *TransferUI) Stop() {
	if ui.program != nil {
		ui.program.Quit()
	}
	ui.wg.Wait()
}

func (m *transferModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), tickCmd())
}

func (m *transferModel) listen() tea.Cmd {
	return func() tea.Msg { return <-m.updateChan }
}

func (m *transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		default:
			if m.cancelFn != nil {
				m.handleCancelKey(msg.String())
			}
		}

	case tea.WindowSizeMsg:
		m.mu.Lock()
		for id, bar := range m.bars {
			bar.Width = min(30, msg.Width-50)
			m.bars[id] = bar
		}
		m.mu.Unlock()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		if !m.quitting && !m.allTerminal() {
			cmds = append(cmds, tickCmd())
		}

	case []*transfer.FileTransfer:
		m.mu.Lock()
		for _, ft := range msg {
			if _, ok := m.items[ft.ID]; !ok {
				m.order = append(m.order, ft.ID)
				bar := progress.New(progress.WithGradient(ProgressStart, ProgressEnd), progress.WithWidth(30), progress.WithoutPercentage())
				m.bars[ft.ID] = &bar
			}
			m.items[ft.ID] = ft
		}
		done := m.allTerminalLocked()
		m.mu.Unlock()
		cmds = append(cmds, m.listen())
		if done {
			cmds = append(cmds, tea.Quit)
		}

	case progress.FrameMsg:
		m.mu.Lock()
		for id, bar := range m.bars {
			updated, cmd := bar.Update(msg)
			next := updated.(progress.Model)
			m.bars[id] = &next
			cmds = append(cmds, cmd)
		}
		m.mu.Unlock()
	}

	return m, tea.Batch(cmds...)
}

func (m *transferModel) handleCancelKey(key string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, id := range m.order {
		if fmt.Sprintf("%d", i+1) == key {
			if ft, ok := m.items[id]; ok && (ft.Status == transfer.StatusQueued || ft.Status == transfer.StatusTransferring) {
				m.cancelFn(id)
			}
			return
		}
	}
}

func (m *transferModel) allTerminal() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allTerminalLocked()
}

func (m *transferModel) allTerminalLocked() bool {
	if len(m.items) == 0 {
		return false
	}
	for _, ft := range m.items {
		switch ft.Status {
		case transfer.StatusCompleted, transfer.StatusCancelled, transfer.StatusError:
		default:
			return false
		}
	}
	return true
}

func (m *transferModel) View() string {
	if m.quitting {
		return ""
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s %s\n\n", m.spinner.View(), m.label)

	var totalSize, totalDone int64
	for _, id := range m.order {
		ft := m.items[id]
		totalSize += ft.Size
		totalDone += int64(float64(ft.Size) * float64(ft.Progress) / 100)
	}
	var overall float64
	if totalSize > 0 {
		overall = float64(totalDone) / float64(totalSize) * 100
	}
	fmt.Fprintf(&b, "Overall: %s (%s/%s)\n\n", BoldStyle.Render(fmt.Sprintf("%.1f%%", overall)), files.FormatSize(totalDone), files.FormatSize(totalSize))

	for i, id := range m.order {
		ft := m.items[id]

		var icon string
		var nameStyle lipgloss.Style
		switch ft.Status {
		case transfer.StatusError:
			icon, nameStyle = IconError, ErrorStyle
		case transfer.StatusCancelled:
			icon, nameStyle = "⊘", MutedStyle
		case transfer.StatusCompleted:
			icon, nameStyle = IconSuccess, SuccessStyle
		case transfer.StatusTransferring:
			icon, nameStyle = m.spinner.View(), lipgloss.NewStyle()
		default:
			icon, nameStyle = "○", MutedStyle
		}

		fmt.Fprintf(&b, "  %d. %s %s ", i+1, icon, nameStyle.Width(24).Render(truncate(ft.Name, 22)))

		if bar, ok := m.bars[id]; ok && ft.Size > 0 {
			b.WriteString(bar.ViewAs(float64(ft.Progress) / 100))
		}
		fmt.Fprintf(&b, " %5d%%", ft.Progress)

		if ft.Status == transfer.StatusTransferring && ft.Speed > 0 {
			fmt.Fprintf(&b, " %s", MutedStyle.Render(files.FormatSize(int64(ft.Speed))+"/s"))
			if ft.ETA != nil {
				fmt.Fprintf(&b, " ETA %s", MutedStyle.Render(formatETA(*ft.ETA)))
			}
		}

		b.WriteString("\n")
	}

	if !m.allTerminalLocked() {
		b.WriteString("\n" + MutedStyle.Render("press q to quit, a number to cancel that transfer"))
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func formatETA(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
