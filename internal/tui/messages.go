package tui

import "github.com/DariyDar/astra/internal/briefing"

// Async message types for Bubble Tea commands.

type queryDoneMsg struct {
	outcome briefing.Outcome
}
