package services

import "testing"

func TestNormalizeTail(t *testing.T) {
	tests := []struct {
		name string
		tail string
		want string
	}{
		{
			name: "Empty defaults to recent window",
			tail: "",
			want: "100",
		},
		{
			name: "Zero requests the full history",
			tail: "0",
			want: "all",
		},
		{
			name: "Explicit count passes through",
			tail: "50",
			want: "50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeTail(tt.tail); got != tt.want {
				t.Errorf("normalizeTail(%q) = %q, want %q", tt.tail, got, tt.want)
			}
		})
	}
}
