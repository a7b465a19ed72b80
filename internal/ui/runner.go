package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/andrefsp/video-democry/internal/call"
)

const (
	refreshInterval = 500 * time.Millisecond
	maxEvents       = 6
)

// RoomUI is the live room view: connection state, a peer table refreshed
// from session snapshots and the latest status changes.
type RoomUI struct {
	program *tea.Program
	model   *roomModel
	updates chan call.Status
	wg      sync.WaitGroup
}

type refreshMsg time.Time

type roomModel struct {
	info     RoomInfo
	state    string
	spinner  spinner.Model
	peers    []PeerRow
	events   []string
	snapshot func() []PeerRow
	onQuit   func()
	updates  chan call.Status
	quitting bool
}

// NewRoomUI creates the view. snapshot is polled for the peer table and
// onQuit runs when the user presses q.
func NewRoomUI(info RoomInfo, snapshot func() []PeerRow, onQuit func()) *RoomUI {
	updates := make(chan call.Status, 100)

	s := spinner.New()
	s.Spinner = spinner.Globe
	s.Style = SpinnerStyle

	model := &roomModel{
		info:     info,
		state:    "Starting...",
		spinner:  s,
		snapshot: snapshot,
		onQuit:   onQuit,
		updates:  updates,
	}
	return &RoomUI{
		// Inline mode keeps previous terminal output visible
		program: tea.NewProgram(model),
		model:   model,
		updates: updates,
	}
}

// Start runs the UI in a goroutine
func (ui *RoomUI) Start() {
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		if _, err := ui.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// Push hands a status change to the view. It never blocks.
func (ui *RoomUI) Push(st call.Status) {
	select {
	case ui.updates <- st:
	default:
	}
}

// Stop stops the UI and waits for it to restore the terminal
func (ui *RoomUI) Stop() {
	ui.program.Quit()
	ui.wg.Wait()
}

func refreshCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m *roomModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates(), refreshCmd())
}

func (m *roomModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

func (m *roomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshMsg:
		if m.snapshot != nil {
			m.peers = m.snapshot()
		}
		return m, refreshCmd()

	case call.Status:
		m.apply(msg)
		return m, m.listenForUpdates()
	}
	return m, nil
}

func (m *roomModel) apply(st call.Status) {
	switch st.Kind {
	case call.StatusConnecting:
		m.state = "Connecting to relay..."
	case call.StatusJoined:
		m.state = "In the room"
	case call.StatusTransportLost:
		m.state = "Relay lost"
	case call.StatusRestarting:
		m.state = "Rejoining..."
	case call.StatusSessionStopped:
		m.state = "Left the room"
	case call.StatusLinkState:
		// Shown in the peer table
		return
	}

	m.events = append(m.events, MutedStyle.Render(st.At.Format("15:04:05"))+" "+FormatStatus(st))
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func (m *roomModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n" + m.info.View() + "\n\n")
	b.WriteString(fmt.Sprintf("%s %s\n\n", m.spinner.View(), m.state))
	b.WriteString(PeerTableView(m.peers) + "\n")

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, e := range m.events {
			b.WriteString("  " + e + "\n")
		}
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to leave"))
	return b.String()
}

// FormatStatus renders one status change as a single line
func FormatStatus(st call.Status) string {
	peer := shortID(st.Peer)
	switch st.Kind {
	case call.StatusConnecting:
		return fmt.Sprintf("%s Connecting to %s", IconConnect, st.Detail)
	case call.StatusJoined:
		return fmt.Sprintf("%s Joined room %s", IconSuccess, st.Detail)
	case call.StatusMembers:
		return fmt.Sprintf("%s %s in the room", IconPeer, st.Detail)
	case call.StatusLinkState:
		return fmt.Sprintf("%s %s: %s", IconLink, peer, st.State)
	case call.StatusPeerHello:
		return fmt.Sprintf("%s %s is %s", IconPeer, peer, st.Detail)
	case call.StatusLinkExhausted:
		return ErrorStyle.Render(fmt.Sprintf("%s Gave up on %s: %s", IconError, peer, st.Detail))
	case call.StatusTransportLost:
		return WarningStyle.Render(fmt.Sprintf("%s Relay lost: %s", IconWarning, st.Detail))
	case call.StatusRestarting:
		return fmt.Sprintf("%s Rejoining (%s)", IconRestart, st.Detail)
	case call.StatusRelayError:
		return WarningStyle.Render(fmt.Sprintf("%s Relay refused: %s", IconWarning, st.Detail))
	case call.StatusSessionStopped:
		if st.Detail != "" {
			return ErrorStyle.Render(fmt.Sprintf("%s Stopped: %s", IconError, st.Detail))
		}
		return fmt.Sprintf("%s Left the room", IconInfo)
	default:
		return fmt.Sprintf("%s %s", st.Kind, st.Detail)
	}
}
