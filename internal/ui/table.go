package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/andrefsp/video-democry/internal/media"
	"github.com/andrefsp/video-democry/internal/negotiation"
	"github.com/andrefsp/video-democry/internal/utils"
)

// PeerRow is one remote participant as shown in the room view
type PeerRow struct {
	Name       string
	ID         string
	StreamID   string
	State      negotiation.State
	Connection string
	Initiator  bool
	Client     string
	Packets    uint64
	Bytes      uint64
}

// PeerRows joins link snapshots with inbound media counters
func PeerRows(links []negotiation.LinkInfo, stats []media.StreamStats) []PeerRow {
	byStream := make(map[string][2]uint64)
	for _, st := range stats {
		c := byStream[st.StreamID]
		c[0] += st.Packets
		c[1] += st.Bytes
		byStream[st.StreamID] = c
	}

	rows := make([]PeerRow, 0, len(links))
	for _, l := range links {
		row := PeerRow{
			Name:       l.Remote.Username,
			ID:         l.Remote.ID,
			StreamID:   l.Remote.StreamID,
			State:      l.State,
			Connection: l.ConnectionState,
			Initiator:  l.Initiator,
		}
		if l.Hello != nil {
			if row.Name == "" {
				row.Name = l.Hello.Username
			}
			row.Client = l.Hello.Version
		}
		if c, ok := byStream[l.Remote.StreamID]; ok {
			row.Packets, row.Bytes = c[0], c[1]
		}
		rows = append(rows, row)
	}
	return rows
}

func stateStyle(s negotiation.State) lipgloss.Style {
	switch s {
	case negotiation.StateStable:
		return StateStableStyle
	case negotiation.StateHaveLocalOffer, negotiation.StateHaveRemoteOffer:
		return StateNegotiatingStyle
	case negotiation.StateFailed:
		return StateFailedStyle
	default:
		return StateIdleStyle
	}
}

func role(initiator bool) string {
	if initiator {
		return "offerer"
	}
	return "answerer"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// PeerTableView renders the live peer table using lipgloss/table
func PeerTableView(rows []PeerRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render(IconWaiting + " Waiting for others to join...")
	}

	headers := []string{"Peer", "Negotiation", "Connection", "Role", "Packets"}
	var data [][]string
	for _, r := range rows {
		name := r.Name
		if name == "" {
			name = shortID(r.ID)
		}
		if r.Client != "" {
			name = fmt.Sprintf("%s (%s)", name, r.Client)
		}
		data = append(data, []string{
			name,
			stateStyle(r.State).Render(r.State.String()),
			r.Connection,
			role(r.Initiator),
			fmt.Sprintf("%d", r.Packets),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

type RoomInfo struct {
	RoomID   string
	Endpoint string
	Username string
}

func (r RoomInfo) View() string {
	content := fmt.Sprintf("%s Room:   %s\n%s You:    %s\n%s Relay:  %s",
		IconRoom, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconPeer, r.Username,
		IconLink, MutedStyle.Render(r.Endpoint),
	)
	return RoomBoxStyle.Render(content)
}

// CallSummary is printed once the session ends
type CallSummary struct {
	RoomID   string
	Elapsed  time.Duration
	Restarts int
	Peers    []PeerRow
}

// CallSummaryView renders the end-of-call report using go-pretty
func CallSummaryView(s CallSummary) string {
	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	// Durations such as "1m 0s" must keep their case.
	t.Style().Format.Footer = text.FormatDefault
	t.SetTitle(fmt.Sprintf("%s Call Summary: %s", IconSummary, s.RoomID))
	t.AppendHeader(prettytable.Row{"Peer", "Last State", "Connection", "Packets", "Received", "Avg Rate"})
	for _, p := range s.Peers {
		name := p.Name
		if name == "" {
			name = shortID(p.ID)
		}
		t.AppendRow(prettytable.Row{
			name, p.State.String(), p.Connection, p.Packets,
			utils.FormatSize(p.Bytes), utils.FormatBitrate(p.Bytes, s.Elapsed),
		})
	}
	if len(s.Peers) == 0 {
		t.AppendRow(prettytable.Row{"(nobody joined)", "", "", "", "", ""})
	}
	t.AppendFooter(prettytable.Row{"Duration", utils.FormatTimeDuration(s.Elapsed), "Restarts", s.Restarts, "", ""})

	return t.Render()
}

func RenderCallSummary(s CallSummary) {
	fmt.Println(CallSummaryView(s))
}
