package models

import (
	"errors"
	"testing"
)

// TestParseSlashCommand covers recognized commands and non-command text
func TestParseSlashCommand(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    SlashCommand
		wantErr bool
	}{
		{
			name: "Preview command",
			text: "/preview",
			want: CommandPreview,
		},
		{
			name: "Delete command",
			text: "/delete",
			want: CommandDelete,
		},
		{
			name: "Case insensitive",
			text: "/PREVIEW",
			want: CommandPreview,
		},
		{
			name: "Surrounding whitespace",
			text: "   /preview   ",
			want: CommandPreview,
		},
		{
			name: "First line only",
			text: "/delete\nplease remove this environment",
			want: CommandDelete,
		},
		{
			name: "Trailing words on first line",
			text: "/preview this branch",
			want: CommandPreview,
		},
		{
			name:    "Plain comment",
			text:    "looks good to me",
			wantErr: true,
		},
		{
			name:    "Unknown slash command",
			text:    "/deploy",
			wantErr: true,
		},
		{
			name:    "Empty text",
			text:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSlashCommand(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrNotACommand) {
					t.Fatalf("Expected ErrNotACommand, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
