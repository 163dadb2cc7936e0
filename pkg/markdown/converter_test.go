package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToTelegramHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "  ", ""},
		{"bold", "**VPN** ready", "<b>VPN</b> ready"},
		{"italic", "*fast*", "<i>fast</i>"},
		{"heading", "# Title", "<b>Title</b>"},
		{"inline code", "run `ls`", "run <code>ls</code>"},
		{"code block", "```go\nfmt.Println(1)\n```", "<pre>fmt.Println(1)\n</pre>"},
		{"list", "- one\n- two", "• one\n• two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToTelegramHTML(tt.in))
		})
	}
}

func TestToTelegramHTML_DropsUnsupportedTags(t *testing.T) {
	out := ToTelegramHTML("| a | b |\n|---|---|\n| 1 | 2 |")
	assert.NotContains(t, out, "<table")
	assert.NotContains(t, out, "<td")
	assert.Contains(t, out, "1")
}
