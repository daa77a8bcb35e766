package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plebchat/internal/agents"
	"plebchat/internal/client"
	httpapi "plebchat/internal/http"
	"plebchat/internal/runner"
)

func relay(t *testing.T) *client.Client {
	t.Helper()
	echobot, err := agents.NewEchobot()
	require.NoError(t, err)
	reg, err := agents.NewRegistry(echobot)
	require.NoError(t, err)
	svc := runner.NewService(reg, zap.NewNop())
	svc.WithEnv(func(string) (string, bool) { return "", false })
	ts := httptest.NewServer(httpapi.NewServer(svc, zap.NewNop()).Handler())
	t.Cleanup(ts.Close)
	return client.New(ts.URL)
}

func chat(t *testing.T, input string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	require.NoError(t, runChat(context.Background(), relay(t), "", false, cmd))
	return out.String()
}

func TestChatEchoesAndKeepsHistory(t *testing.T) {
	out := chat(t, "hello there\n:history\n:quit\n")

	assert.Contains(t, out, "Echo bot")
	assert.Contains(t, out, "human: hello there")
	assert.Contains(t, out, "assistant: hello there")
}

func TestChatConfigReverses(t *testing.T) {
	out := chat(t, ":config\n\nreverse\n\nabc\n:history\n")

	assert.Contains(t, out, "Configuration saved.")
	assert.Contains(t, out, "assistant: cba")
}

func TestChatUnknownAgent(t *testing.T) {
	out := chat(t, ":agent nope\n:agent\n")

	assert.Contains(t, out, "unknown agent")
	assert.Contains(t, out, "* echobot")
}

func TestChatCommandReply(t *testing.T) {
	out := chat(t, "/version\n")
	assert.Contains(t, out, "0.99.1")
}
