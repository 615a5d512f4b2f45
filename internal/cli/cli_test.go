package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/rcon/rcontest"
	"github.com/energizer-project/rconbridge/internal/server"
	"github.com/energizer-project/rconbridge/internal/status"
)

func newTestConsole(t *testing.T, input string) (*Console, *bytes.Buffer, *rcontest.Server) {
	t.Helper()
	srv := rcontest.NewServer(t, "secret", func(cmd string) string {
		return "echo: " + cmd
	})

	cfg := config.DefaultConfig()
	cfg.UpsertTarget(config.ServerTarget{Name: "off", Address: "127.0.0.1:1", Enabled: false})
	cfg.UpsertTarget(config.ServerTarget{
		Name:           "alpha",
		Address:        srv.Addr(),
		Password:       "secret",
		ReadTimeoutSec: 2,
		Enabled:        true,
	})
	cfg.UpsertTarget(config.ServerTarget{
		Name:           "beta",
		Address:        srv.Addr(),
		Password:       "secret",
		ReadTimeoutSec: 2,
		Enabled:        true,
	})

	out := &bytes.Buffer{}
	return NewConsole(server.NewManager(cfg, nil), strings.NewReader(input), out), out, srv
}

func TestConsoleSelectsFirstEnabledServer(t *testing.T) {
	c, _, _ := newTestConsole(t, "")
	assert.Equal(t, "alpha", c.Current())
}

func TestConsoleExecutesPlainLines(t *testing.T) {
	c, out, srv := newTestConsole(t, "status\n\nplayers\n:quit\nnever\n")

	require.NoError(t, c.Run(context.Background()))

	output := out.String()
	assert.Contains(t, output, "echo: status\n")
	assert.Contains(t, output, "echo: players\n")
	assert.NotContains(t, output, "never")

	var bodies []string
	for _, req := range srv.Requests() {
		bodies = append(bodies, req.Body)
	}
	assert.Equal(t, []string{"secret", "status", "players"}, bodies)
}

func TestConsoleUseAndHistory(t *testing.T) {
	c, out, _ := newTestConsole(t, ":use beta\nstatus\n:use ghost\n:history 1\n")

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, "beta", c.Current())

	output := out.String()
	assert.Contains(t, output, "Using beta")
	assert.Contains(t, output, "unknown server")
	assert.Contains(t, output, "beta> ")
	assert.Regexp(t, `1\s+beta\s+ok\s+status`, output)
}

func TestConsoleHistoryArgs(t *testing.T) {
	c, out, _ := newTestConsole(t, "")

	require.NoError(t, c.cmdHistory(nil))
	assert.Contains(t, out.String(), "No commands yet")

	assert.Error(t, c.cmdHistory([]string{"zero"}))
	assert.Error(t, c.cmdHistory([]string{"0"}))

	for i := 0; i < maxLocalHistory+5; i++ {
		c.remember(historyLine{server: "alpha", command: "x", ok: true})
	}
	assert.Len(t, c.history, maxLocalHistory)
}

func TestConsoleUnknownCommand(t *testing.T) {
	c, out, _ := newTestConsole(t, ":bogus\n:help\n")

	require.NoError(t, c.Run(context.Background()))
	output := out.String()
	assert.Contains(t, output, "unknown console command :bogus")
	assert.Contains(t, output, ":history [N]")
}

func TestConsoleDisabledServer(t *testing.T) {
	c, out, _ := newTestConsole(t, ":use off\nstatus\n")

	require.NoError(t, c.Run(context.Background()))
	assert.Contains(t, out.String(), server.ErrServerDisabled.Error())
	require.Len(t, c.history, 1)
	assert.False(t, c.history[0].ok)
}

func TestConsoleServersTable(t *testing.T) {
	c, out, _ := newTestConsole(t, "status\n:servers\n")

	require.NoError(t, c.Run(context.Background()))
	output := out.String()
	assert.Contains(t, output, "Name")
	assert.Contains(t, output, "alpha")
	assert.Contains(t, output, "connected")
	assert.Contains(t, output, "beta")
}

func TestPrintTargetsHidesPasswords(t *testing.T) {
	var buf bytes.Buffer
	PrintTargets(&buf, []config.ServerTarget{
		{Name: "alpha", Address: "10.0.0.1:27015", Password: "hunter2", Enabled: true, ReadTimeoutSec: 5},
		{Name: "beta", Address: "10.0.0.2:27015"},
	})

	output := buf.String()
	assert.Contains(t, output, "alpha")
	assert.Contains(t, output, "10.0.0.2:27015")
	assert.Contains(t, output, "5s")
	assert.Contains(t, output, "default")
	assert.NotContains(t, output, "hunter2")
}

func TestJoinArgs(t *testing.T) {
	assert.Equal(t, "say hello world", JoinArgs([]string{"say", "hello", "world"}))
	assert.Equal(t, "", JoinArgs(nil))
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	PrintStatus(&buf, status.Parse("hostname: box\nmap : de_vertigo\nplayers : 1 humans, 1 bots (10/0 max)\n"+
		"# 2 1 \"Zed\" STEAM_1:0:5 00:30 25 0 active 196608 192.0.2.3:27005\n# 3 \"Bot\" BOT active 64\n"))

	output := buf.String()
	assert.Contains(t, output, "de_vertigo")
	assert.Contains(t, output, "1 humans, 1 bots (10 max)")
	assert.Contains(t, output, "Zed")
	assert.Contains(t, output, "30s")
}
