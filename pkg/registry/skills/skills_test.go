package skills

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already clean", "util_time", "util_time"},
		{"dots and slashes collapse", "fs/read.file", "fs_read_file"},
		{"spaces collapse", "send slack message", "send_slack_message"},
		{"dashes preserved", "list-pull-requests", "list-pull-requests"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sanitizeName(tc.in))
		})
	}
}

func TestSanitizeName_Truncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := sanitizeName(long)
	assert.Len(t, got, 128)
}

func TestRegistry_HasToolUnknownName(t *testing.T) {
	r := New(nil)
	assert.False(t, r.HasTool("nonexistent"))
	assert.Empty(t, r.ToolDefinitions())
}
