package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for the prompt UI.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))            // magenta
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // gray
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))            // red

	promptBlockStyle = lipgloss.NewStyle().
				PaddingLeft(1).
				BorderLeft(true).
				BorderStyle(lipgloss.ThickBorder()).
				BorderForeground(lipgloss.Color("6"))
)
