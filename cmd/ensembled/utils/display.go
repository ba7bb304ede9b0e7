// Package utils contains display helpers for the ensembled daemon.
package utils

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/concave-dev/ensemble/internal/cnxn"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	leadStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
)

// DisplayLogo prints the ensembled banner with version information
func DisplayLogo(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render(" ensembled v" + version))
	fmt.Println(" Embedded coordination node")
	fmt.Println()
}

// FormatStatus renders a node status for the terminal.
func FormatStatus(s *cnxn.StatusResponse) string {
	state := s.State
	if s.Leader {
		state = leadStyle.Render(state)
	}
	leader := s.LeaderID
	if s.LeaderAddr != "" {
		leader = fmt.Sprintf("%s (%s)", s.LeaderID, s.LeaderAddr)
	}
	if leader == "" {
		leader = "none"
	}

	rows := []struct{ label, value string }{
		{"Node", s.ID},
		{"State", state},
		{"Leader", leader},
		{"Secure", fmt.Sprint(s.Secure)},
		{"Keys", fmt.Sprint(s.Keys)},
		{"Tick time", s.TickTime},
		{"Uptime", s.Uptime},
		{"Version", s.Version},
	}

	out := ""
	for _, r := range rows {
		out += labelStyle.Render(r.label) + r.value + "\n"
	}
	return out
}
