package ui

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipedPrompter(input string) (*TerminalPrompter, *bytes.Buffer) {
	var out bytes.Buffer
	return &TerminalPrompter{
		in:          bufio.NewReader(strings.NewReader(input)),
		out:         &out,
		interactive: false,
	}, &out
}

func TestInputPiped(t *testing.T) {
	p, out := pipedPrompter("  some value  \n")
	got, err := p.Input("Enter a value")
	require.NoError(t, err)
	assert.Equal(t, "some value", got)
	assert.Contains(t, out.String(), "Enter a value")
}

func TestSecretPipedReadsOneLine(t *testing.T) {
	p, out := pipedPrompter("hunter2\nnext line\n")
	got, err := p.Secret("Enter your AWS_SECRET_ACCESS_KEY")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
	// The prompt goes out but the secret itself is never written back.
	assert.NotContains(t, out.String(), "hunter2")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"no\n", false},
		{"\n", false},
		{"what\n", false},
	}
	for _, tt := range tests {
		p, _ := pipedPrompter(tt.answer)
		got, err := p.Confirm("Proceed?")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "answer %q", tt.answer)
	}
}

func TestSelect(t *testing.T) {
	p, out := pipedPrompter("2\n")
	idx, err := p.Select("Pick one", []string{"first", "second", "third"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Contains(t, out.String(), "2. second")
}

func TestSelectRetriesThenGivesUp(t *testing.T) {
	p, _ := pipedPrompter("0\nnine\n4\n")
	_, err := p.Select("Pick one", []string{"first", "second", "third"})
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestSelectRecoversFromBadInput(t *testing.T) {
	p, _ := pipedPrompter("garbage\n3\n")
	idx, err := p.Select("Pick one", []string{"first", "second", "third"})
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}
