package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/BioHazard786/huddle/internal/huddle"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// PeerTableView renders the remote participants and their negotiation state.
func PeerTableView(peers []huddle.PeerInfo, now time.Time) string {
	if len(peers) == 0 {
		return MutedStyle.Render("Nobody else is here yet")
	}

	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		state := StateView(p.State)
		if p.Error != "" {
			state += " " + MutedStyle.Render(truncate(p.Error, 40))
		}
		rows = append(rows, []string{
			truncate(p.UserID, 24),
			state,
			fmt.Sprintf("%d", p.ConnectedCount),
			formatSince(now.Sub(p.Since)),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Participant", "State", "Connects", "Since").
		Rows(rows...).
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

// StateView colors a peer state.
func StateView(s huddle.PeerState) string {
	switch s {
	case huddle.PeerConnected:
		return SuccessStyle.Render(string(s))
	case huddle.PeerFailed:
		return ErrorStyle.Render(string(s))
	case huddle.PeerClosed:
		return MutedStyle.Render(string(s))
	default:
		return WarningStyle.Render(string(s))
	}
}

type RoomInfo struct {
	RoomID string
	UserID string
}

func (r RoomInfo) View() string {
	content := fmt.Sprintf("%s Huddle room\n\n%s Room:  %s\n%s You:   %s\n\n%s",
		IconHuddle,
		IconRoom, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconPeer, r.UserID,
		MutedStyle.Render(IconCopy+" others join with: huddle join "+r.RoomID),
	)

	return RoomBoxStyle.Render(content)
}

// RenderMembers writes a plain table of room members, suitable for pipes.
func RenderMembers(w io.Writer, roomID string, members []string) {
	t := prettytable.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(roomID)
	t.AppendHeader(prettytable.Row{"#", "Member"})
	for i, m := range members {
		t.AppendRow(prettytable.Row{i + 1, m})
	}
	t.AppendFooter(prettytable.Row{"", fmt.Sprintf("%d total", len(members))})
	t.SetStyle(prettytable.StyleRounded)
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatSince(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
