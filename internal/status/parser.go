// Package status parses the reply of the Source engine "status" console
// command into server and player information.
package status

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Command is the console command whose output Parse understands.
const Command = "status"

// Player is one row of the player table.
type Player struct {
	UserID    int           `json:"user_id"`
	Name      string        `json:"name"`
	UniqueID  string        `json:"unique_id"`
	Connected time.Duration `json:"connected"`
	Ping      int           `json:"ping"`
	Loss      int           `json:"loss"`
	State     string        `json:"state"`
	Address   string        `json:"address,omitempty"`
	Bot       bool          `json:"bot"`
}

// Info is the parsed status reply. Fields the server did not report are
// left zero.
type Info struct {
	Hostname   string   `json:"hostname"`
	Version    string   `json:"version"`
	Address    string   `json:"address"`
	OS         string   `json:"os,omitempty"`
	Type       string   `json:"type,omitempty"`
	Map        string   `json:"map"`
	Humans     int      `json:"humans"`
	Bots       int      `json:"bots"`
	MaxPlayers int      `json:"max_players"`
	Players    []Player `json:"players"`
}

var (
	reHeader = regexp.MustCompile(`^([a-z/ ]+?)\s*:\s*(.*)$`)

	// "2 humans, 1 bots (16/0 max)" and "5 (24 max)"
	rePlayersNew = regexp.MustCompile(`(\d+)\s+humans?,\s*(\d+)\s+bots?\s*\((\d+)/\d+\s+max\)`)
	rePlayersOld = regexp.MustCompile(`^(\d+)\s+\((\d+)\s+max\)`)

	// "# 2 1 "Name" STEAM_1:0:1 05:12 50 0 active 196608 1.2.3.4:27005"
	// The second number only appears on newer engines.
	rePlayerRow = regexp.MustCompile(`^#\s*(\d+)\s+(?:\d+\s+)?"(.*)"\s+(\S+)\s*(.*)$`)
)

// Parse reads a status reply. Unknown lines are ignored, so partial or
// game-specific output still yields whatever fields are recognizable.
func Parse(body string) Info {
	info := Info{Players: make([]Player, 0)}

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := cleanLine(scanner.Text())
		if line == "" || line == "#end" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if p, ok := parsePlayer(line); ok {
				info.Players = append(info.Players, p)
			}
			continue
		}
		parseHeader(line, &info)
	}

	if info.Humans == 0 && info.Bots == 0 {
		for _, p := range info.Players {
			if p.Bot {
				info.Bots++
			} else {
				info.Humans++
			}
		}
	}
	return info
}

// parseHeader handles a "key : value" line above the player table.
func parseHeader(line string, info *Info) {
	matches := reHeader.FindStringSubmatch(line)
	if len(matches) < 3 {
		return
	}
	key := strings.TrimSpace(matches[1])
	value := strings.TrimSpace(matches[2])

	switch key {
	case "hostname":
		info.Hostname = value
	case "version":
		info.Version = firstField(value)
	case "udp/ip":
		info.Address = firstField(value)
	case "os":
		info.OS = value
	case "type":
		info.Type = value
	case "map":
		info.Map = firstField(value)
	case "players":
		if m := rePlayersNew.FindStringSubmatch(value); len(m) > 3 {
			info.Humans, _ = strconv.Atoi(m[1])
			info.Bots, _ = strconv.Atoi(m[2])
			info.MaxPlayers, _ = strconv.Atoi(m[3])
		} else if m := rePlayersOld.FindStringSubmatch(value); len(m) > 2 {
			info.Humans, _ = strconv.Atoi(m[1])
			info.MaxPlayers, _ = strconv.Atoi(m[2])
		}
	}
}

// parsePlayer handles one row of the player table. The column header row
// does not match.
func parsePlayer(line string) (Player, bool) {
	matches := rePlayerRow.FindStringSubmatch(line)
	if len(matches) < 5 {
		return Player{}, false
	}

	p := Player{Name: matches[2], UniqueID: matches[3]}
	p.UserID, _ = strconv.Atoi(matches[1])
	rest := strings.Fields(matches[4])

	if p.UniqueID == "BOT" {
		p.Bot = true
		if len(rest) > 0 {
			p.State = rest[0]
		}
		return p, true
	}

	if len(rest) > 0 {
		p.Connected = parseConnected(rest[0])
	}
	if len(rest) > 1 {
		p.Ping, _ = strconv.Atoi(rest[1])
	}
	if len(rest) > 2 {
		p.Loss, _ = strconv.Atoi(rest[2])
	}
	if len(rest) > 3 {
		p.State = rest[3]
	}
	if len(rest) > 4 {
		if last := rest[len(rest)-1]; strings.Contains(last, ":") {
			p.Address = last
		}
	}
	return p, true
}

// parseConnected parses "MM:SS" or "HH:MM:SS".
func parseConnected(s string) time.Duration {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	var total time.Duration
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		total = total*60 + time.Duration(n)
	}
	return total * time.Second
}

func firstField(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// cleanLine strips a byte order mark and NUL padding some servers send.
func cleanLine(line string) string {
	line = strings.TrimPrefix(line, "\xef\xbb\xbf")
	line = strings.ReplaceAll(line, "\x00", "")
	return strings.TrimSpace(line)
}
