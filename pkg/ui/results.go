package ui

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"followback/pkg/relationships"
)

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	dimWhite    = lipgloss.Color("#B0B0B0")

	headerStyle = lipgloss.NewStyle().
			Foreground(neonMagenta).
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Foreground(dimWhite).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(neonGreen).
			Bold(true)

	totalStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)
)

// RenderTable returns the result as a two column table of username and full name
func RenderTable(result relationships.Result) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(neonMagenta)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("Username", "Full Name")

	for _, entry := range result.Sorted() {
		t.Row(entry.Profile.Handle, entry.Profile.DisplayName)
	}

	return t.String()
}

// PrintResults writes the heading, the table and the total line to w
func PrintResults(w io.Writer, result relationships.Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Users who don't follow you back:"))
	if result.Total > 0 {
		fmt.Fprintln(w, RenderTable(result))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total: %s users don't follow you back\n", totalStyle.Render(fmt.Sprint(result.Total)))
}

// jsonEntry is one account in JSON output
type jsonEntry struct {
	ID         relationships.AccountID `json:"id"`
	Username   string                  `json:"username"`
	FullName   string                  `json:"full_name"`
	ProfilePic string                  `json:"profile_pic_url,omitempty"`
}

// PrintResultsJSON writes the result as indented JSON, sorted like the table
func PrintResultsJSON(w io.Writer, result relationships.Result) error {
	entries := make([]jsonEntry, 0, result.Total)
	for _, e := range result.Sorted() {
		entries = append(entries, jsonEntry{
			ID:         e.ID,
			Username:   e.Profile.Handle,
			FullName:   e.Profile.DisplayName,
			ProfilePic: e.Profile.AvatarURL,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Total        int         `json:"total"`
		NonFollowers []jsonEntry `json:"non_followers"`
	}{
		Total:        result.Total,
		NonFollowers: entries,
	})
}
