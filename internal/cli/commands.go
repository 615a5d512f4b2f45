package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/server"
	"github.com/energizer-project/rconbridge/internal/status"
)

const defaultHistoryLines = 10

// dispatch runs a console command.
func (c *Console) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		return c.cmdHelp()
	case "servers", "s":
		PrintSessions(c.out, c.manager.Info(), c.current)
		return nil
	case "use", "u":
		return c.cmdUse(args)
	case "history":
		return c.cmdHistory(args)
	case "status":
		return c.cmdStatus(ctx)
	case "disconnect":
		return c.cmdDisconnect(ctx)
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown console command :%s, type :help", cmd)
	}
}

func (c *Console) cmdHelp() error {
	fmt.Fprintln(c.out, "Console commands:")
	fmt.Fprintln(c.out, "  :help            Show this help message")
	fmt.Fprintln(c.out, "  :servers         List configured servers")
	fmt.Fprintln(c.out, "  :use NAME        Send commands to NAME")
	fmt.Fprintln(c.out, "  :history [N]     Show the last N commands (default 10)")
	fmt.Fprintln(c.out, "  :status          Show map and players of the current server")
	fmt.Fprintln(c.out, "  :disconnect      Close the current session")
	fmt.Fprintln(c.out, "  :quit            Leave the console")
	fmt.Fprintln(c.out, "Any other line is executed on the selected server.")
	return nil
}

func (c *Console) cmdUse(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: :use NAME")
	}
	if err := c.Use(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Using %s\n", args[0])
	return nil
}

func (c *Console) cmdHistory(args []string) error {
	n := defaultHistoryLines
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		n = v
	}

	lines := c.history
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	if len(lines) == 0 {
		fmt.Fprintln(c.out, "No commands yet")
		return nil
	}

	for i, h := range lines {
		mark := "ok"
		if !h.ok {
			mark = "failed"
		}
		fmt.Fprintf(c.out, "%3d  %-12s %-6s %s\n", len(c.history)-len(lines)+i+1, h.server, mark, h.command)
	}
	return nil
}

func (c *Console) cmdStatus(ctx context.Context) error {
	if c.current == "" {
		return fmt.Errorf("no server selected")
	}
	result, err := c.manager.Execute(ctx, c.current, status.Command)
	if err != nil {
		return err
	}
	PrintStatus(c.out, status.Parse(result.Response.Body))
	return nil
}

func (c *Console) cmdDisconnect(ctx context.Context) error {
	if c.current == "" {
		return fmt.Errorf("no server selected")
	}
	if err := c.manager.Disconnect(ctx, c.current); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Disconnected from %s\n", c.current)
	return nil
}

// PrintSessions renders session state as a table. The current server is
// marked with '*'.
func PrintSessions(w io.Writer, sessions []server.SessionInfo, current string) {
	tw := newTable(w, []string{"", "Name", "Address", "Enabled", "State", "Commands", "Failures", "Last Used"})

	for _, s := range sessions {
		mark := ""
		if s.Name == current {
			mark = "*"
		}
		lastUsed := "-"
		if s.LastUsed != nil {
			lastUsed = s.LastUsed.Format(time.DateTime)
		}
		tw.Append([]string{
			mark,
			s.Name,
			s.Address,
			strconv.FormatBool(s.Enabled),
			s.State.String(),
			strconv.FormatUint(s.Commands, 10),
			strconv.FormatUint(s.Failures, 10),
			lastUsed,
		})
	}

	tw.Render()
}

// PrintStatus renders a parsed status reply.
func PrintStatus(w io.Writer, info status.Info) {
	fmt.Fprintf(w, "Host:    %s\n", info.Hostname)
	fmt.Fprintf(w, "Map:     %s\n", info.Map)
	fmt.Fprintf(w, "Players: %d humans, %d bots (%d max)\n", info.Humans, info.Bots, info.MaxPlayers)
	if len(info.Players) == 0 {
		return
	}

	tw := newTable(w, []string{"ID", "Name", "Unique ID", "Connected", "Ping", "State"})
	for _, p := range info.Players {
		connected, ping := "-", "-"
		if !p.Bot {
			connected = p.Connected.String()
			ping = strconv.Itoa(p.Ping)
		}
		tw.Append([]string{strconv.Itoa(p.UserID), p.Name, p.UniqueID, connected, ping, p.State})
	}
	tw.Render()
}

// PrintTargets renders configured server targets. Passwords are never
// printed.
func PrintTargets(w io.Writer, targets []config.ServerTarget) {
	tw := newTable(w, []string{"Name", "Address", "Enabled", "Password", "Read Timeout", "Write Timeout"})

	for _, t := range targets {
		password := "no"
		if t.Password != "" {
			password = "yes"
		}
		tw.Append([]string{
			t.Name,
			t.Address,
			strconv.FormatBool(t.Enabled),
			password,
			secondsOrDefault(t.ReadTimeoutSec),
			secondsOrDefault(t.WriteTimeoutSec),
		})
	}

	tw.Render()
}

func secondsOrDefault(sec int) string {
	if sec <= 0 {
		return "default"
	}
	return strconv.Itoa(sec) + "s"
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	return tw
}

// FormatRows renders arbitrary rows with a header; used by the token
// listing.
func FormatRows(w io.Writer, header []string, rows [][]string) {
	tw := newTable(w, header)
	tw.AppendBulk(rows)
	tw.Render()
}

// JoinArgs rebuilds a command line from cobra arguments.
func JoinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
