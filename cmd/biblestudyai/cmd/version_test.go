package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AssetOverflow/BibleStudyAI/pkg/version"
)

func TestVersionCmdDefaultOutput(t *testing.T) {
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "biblestudyai")
	assert.Contains(t, output, version.Version)
	assert.Contains(t, output, "commit")
}

func TestVersionCmdShortOutput(t *testing.T) {
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--short"})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(buf.String()))
}

func TestVersionCmdJSONOutput(t *testing.T) {
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--json"})

	err := cmd.Execute()

	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestRootCmdHasSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"serve", "ask", "sessions", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
