// Package cli implements the interactive RCON console and the table
// output shared by the command-line tools.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/energizer-project/rconbridge/internal/server"
	"github.com/energizer-project/rconbridge/internal/util"
)

// maxLocalHistory bounds the commands remembered by :history.
const maxLocalHistory = 200

// errQuit ends the console loop.
var errQuit = errors.New("quit")

// Console reads lines from in and executes them on the selected server.
// Lines starting with ':' are console commands.
type Console struct {
	manager *server.Manager
	in      io.Reader
	out     io.Writer
	logger  zerolog.Logger

	current string
	history []historyLine
}

type historyLine struct {
	server  string
	command string
	ok      bool
}

// NewConsole creates a console bound to manager. The first enabled server
// is selected when there is one.
func NewConsole(manager *server.Manager, in io.Reader, out io.Writer) *Console {
	c := &Console{
		manager: manager,
		in:      in,
		out:     out,
		logger:  util.ComponentLogger("console"),
	}
	for _, info := range manager.Info() {
		if info.Enabled {
			c.current = info.Name
			break
		}
	}
	return c
}

// Current returns the selected server name.
func (c *Console) Current() string {
	return c.current
}

// Use selects the server that plain lines are sent to.
func (c *Console) Use(name string) error {
	if _, err := c.manager.Session(name); err != nil {
		return err
	}
	c.current = name
	return nil
}

// Run processes lines until EOF, :quit or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintf(c.out, "%s %s console. Type :help for console commands.\n", util.AppName, util.Version)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			return nil
		}

		c.prompt()
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		err := c.handleLine(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

func (c *Console) prompt() {
	name := c.current
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(c.out, "%s> ", name)
}

// handleLine dispatches one input line.
func (c *Console) handleLine(ctx context.Context, line string) error {
	if strings.HasPrefix(line, ":") {
		fields := strings.Fields(line[1:])
		if len(fields) == 0 {
			return c.cmdHelp()
		}
		return c.dispatch(ctx, strings.ToLower(fields[0]), fields[1:])
	}
	return c.execute(ctx, line)
}

// execute sends line to the selected server and prints the response body.
func (c *Console) execute(ctx context.Context, line string) error {
	if c.current == "" {
		return fmt.Errorf("no server selected, use :use NAME")
	}

	result, err := c.manager.Execute(ctx, c.current, line)
	c.remember(historyLine{server: c.current, command: line, ok: err == nil})
	if err != nil {
		return err
	}

	body := result.Response.Body
	if body != "" {
		fmt.Fprint(c.out, body)
		if !strings.HasSuffix(body, "\n") {
			fmt.Fprintln(c.out)
		}
	}
	c.logger.Debug().
		Str("server", c.current).
		Str("command", line).
		Dur("duration", result.Duration).
		Msg("console command executed")
	return nil
}

func (c *Console) remember(h historyLine) {
	c.history = append(c.history, h)
	if over := len(c.history) - maxLocalHistory; over > 0 {
		c.history = c.history[over:]
	}
}
