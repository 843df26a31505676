package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner is a blocking terminal spinner for operations with no native
// progress signal: ICE gathering, waiting for the peer's signal string.
type Spinner struct {
	message  string
	spinner  spinner.Spinner
	interval time.Duration
	done     chan struct{}
	stopped  bool
}

// NewConnectionSpinner is for ICE gathering / connecting phases.
func NewConnectionSpinner(message string) *Spinner {
	return &Spinner{message: message, spinner: spinner.Globe, interval: 180 * time.Millisecond, done: make(chan struct{})}
}

// NewWaitingSpinner is for waiting on the remote peer (waitingForPeer).
func NewWaitingSpinner(message string) *Spinner {
	return &Spinner{message: message, spinner: spinner.Points, interval: 100 * time.Millisecond, done: make(chan struct{})}
}

func (s *Spinner) Start() {
	go func() {
		frames := s.spinner.Frames
		i := 0
		for {
			select {
			case <-s.done:
				return
			default:
				frame := SpinnerStyle.Render(frames[i%len(frames)])
				fmt.Printf("\r%s %s", frame, s.message)
				i++
				time.Sleep(s.interval)
			}
		}
	}()
}

func (s *Spinner) Stop() {
	if !s.stopped {
		s.stopped = true
		close(s.done)
		fmt.Print("\r\033[K")
	}
}

func (s *Spinner) Success(message string) {
	s.Stop()
	fmt.Printf("%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

func (s *Spinner) Error(message string) {
	s.Stop()
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), message)
}

// RunConnectionSpinner starts a connection spinner and returns its stop func.
func RunConnectionSpinner(message string) func() {
	sp := NewConnectionSpinner(message)
	sp.Start()
	return sp.Stop
}

// RunWaitingSpinner starts a waiting spinner and returns its stop func.
func RunWaitingSpinner(message string) func() {
	sp := NewWaitingSpinner(message)
	sp.Start()
	return sp.Stop
}
