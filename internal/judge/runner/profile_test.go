package runner

import (
	"context"
	"testing"
	"time"

	"codenvibe/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileArgv(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		workDir string
		want    []string
	}{
		{name: "python", profile: "python", workDir: "/tmp/run-1", want: []string{"python3", "-I", "-B", "/tmp/run-1/main.py"}},
		{name: "path with spaces", profile: "shell", workDir: "/tmp/run 2", want: []string{"sh", "/tmp/run 2/main.sh"}},
		{name: "case insensitive", profile: "JavaScript", workDir: "/w", want: []string{"node", "--max-old-space-size=192", "/w/main.js"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := LookupProfile(tt.profile)
			require.NoError(t, err)
			got, err := p.Argv(tt.workDir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupUnknownProfile(t *testing.T) {
	_, err := LookupProfile("cobol")
	require.ErrorIs(t, err, common.ErrValidation)
}

type staticRunner struct{ out string }

func (s staticRunner) Run(context.Context, string, string, time.Duration) Outcome {
	return Outcome{Kind: KindOutput, Output: s.out}
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry("python", map[string]Runner{
		"python": staticRunner{out: "py"},
		"shell":  staticRunner{out: "sh"},
	})

	rn, err := reg.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "py", rn.Run(context.Background(), "", "", 0).Output)

	rn, err = reg.Resolve("shell")
	require.NoError(t, err)
	assert.Equal(t, "sh", rn.Run(context.Background(), "", "", 0).Output)

	_, err = reg.Resolve("cobol")
	require.ErrorIs(t, err, common.ErrQuestionIntegrity)
	assert.Equal(t, []string{"python", "shell"}, reg.Languages())
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(5)
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n, "writes always report full length")
	assert.Equal(t, "abcde", b.String())
	assert.True(t, b.Truncated())
}
