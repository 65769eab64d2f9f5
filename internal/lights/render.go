package lights

import (
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	dirtyStyle  = cellStyle.Foreground(lipgloss.Color("11"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

// RenderTable formats every light, sorted by name, for display
func (s *Store) RenderTable() string {
	snap := s.Snapshot()

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		st := snap[name]
		rows = append(rows, []string{
			name,
			mark(st.On),
			strconv.Itoa(int(st.Hue)),
			strconv.Itoa(int(st.Sat)),
			strconv.Itoa(int(st.Bri)),
			strconv.FormatFloat(st.Transition.Seconds(), 'g', -1, 64),
			mark(st.Dirty),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("Light", "On", "Hue", "Sat", "Bri", "Transit", "Changed").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(rows) && rows[row][6] != "" {
				return dirtyStyle
			}
			return cellStyle
		})

	return t.String()
}

func mark(b bool) string {
	if b {
		return "x"
	}
	return ""
}
