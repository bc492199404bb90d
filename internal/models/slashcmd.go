package models

import (
	"errors"
	"strings"
)

// SlashCommand is a recognized PR comment command
type SlashCommand int

const (
	CommandPreview SlashCommand = iota
	CommandDelete
)

// ErrNotACommand indicates the comment text is not a recognized slash command.
// This is expected for ordinary comments and is not treated as a failure.
var ErrNotACommand = errors.New("not a slash command")

// ParseSlashCommand matches the first whitespace-trimmed token of a comment's
// first line against the known commands, case-insensitively.
func ParseSlashCommand(text string) (SlashCommand, error) {
	firstLine := text
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	token := strings.ToLower(strings.TrimSpace(firstLine))
	if idx := strings.IndexByte(token, ' '); idx >= 0 {
		token = token[:idx]
	}

	switch token {
	case "/preview":
		return CommandPreview, nil
	case "/delete":
		return CommandDelete, nil
	default:
		return 0, ErrNotACommand
	}
}

// String returns the command's slash-token form
func (c SlashCommand) String() string {
	switch c {
	case CommandPreview:
		return "/preview"
	case CommandDelete:
		return "/delete"
	default:
		return "unknown"
	}
}
