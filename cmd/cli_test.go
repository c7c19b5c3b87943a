package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/odit-bit/rcaccelerator/api"
	"github.com/odit-bit/rcaccelerator/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStreamer struct {
	requests []api.PromptRequest
	cleared  []string
}

func (m *mockStreamer) PromptStream(ctx context.Context, in api.PromptRequest, fn func(string) error) ([]string, error) {
	m.requests = append(m.requests, in)
	for _, d := range []string{"disk", " full"} {
		if err := fn(d); err != nil {
			return nil, err
		}
	}
	return []string{"https://ci/1"}, nil
}

func (m *mockStreamer) ClearSession(ctx context.Context, session string) error {
	m.cleared = append(m.cleared, session)
	return nil
}

func TestChatSession(t *testing.T) {
	cli := &mockStreamer{}
	s := &chatSession{cli: cli, settings: chat.DefaultSettings(), id: "first"}

	input := strings.Join([]string{
		"why did it fail?",
		"/profile Documentation",
		"",
		"and now?",
		"/reset",
		"/exit",
		"never sent",
	}, "\n")
	var out bytes.Buffer
	require.NoError(t, s.run(context.Background(), strings.NewReader(input), &out))

	require.Len(t, cli.requests, 2)
	assert.Equal(t, "why did it fail?", cli.requests[0].Content)
	assert.Equal(t, "CI Logs", cli.requests[0].Profile)
	assert.Equal(t, "first", cli.requests[0].SessionID)
	assert.Equal(t, "Documentation", cli.requests[1].Profile)

	assert.Equal(t, []string{"first"}, cli.cleared)
	assert.NotEqual(t, "first", s.id)

	assert.Contains(t, out.String(), "disk full\n")
	assert.Contains(t, out.String(), "- https://ci/1")
	assert.Contains(t, out.String(), "profile set to Documentation")
}

func TestReadLine(t *testing.T) {
	got, err := readLine(strings.NewReader("s3cret\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	got, err = readLine(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)

	_, err = readLine(strings.NewReader("\n"))
	assert.Error(t, err)
}

func TestCommands(t *testing.T) {
	for _, c := range Commands() {
		assert.NotEmpty(t, c.Use)
		assert.NotEmpty(t, c.Short)
	}
	assert.NotNil(t, ChatCMD.Flags().Lookup("server"))
	assert.NotNil(t, ServerCMD.Flags().Lookup("gen_driver"))
	assert.NotNil(t, userAddCMD.Flags().Lookup("password"))
}
