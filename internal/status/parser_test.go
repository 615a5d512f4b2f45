package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modernStatus = `hostname: Practice Server
version : 1.38.7.9/13879 1168/8684 secure  [G:1:123456]
udp/ip  : 0.0.0.0:27015  (public ip: 203.0.113.7)
os      :  Linux
type    :  community dedicated
map     : de_dust2
players : 2 humans, 1 bots (16/0 max) (not hibernating)

# userid name uniqueid connected ping loss state rate adr
#  2 1 "Alice" STEAM_1:0:123 05:12 50 0 active 196608 198.51.100.4:27005
#  3 2 "Bob the \"Builder\"" STEAM_1:1:456 1:02:03 80 1 spawning 128000 198.51.100.5:27005
# 4 "Bot Carl" BOT active 64
#end
`

const legacyStatus = "\xef\xbb\xbfhostname: Old Server\n" +
	"version : 7934765/24 7934765 secure\n" +
	"udp/ip  : 10.0.0.2:27016\n" +
	"map     : cp_badlands at: 0 x, 0 y, 0 z\n" +
	"players : 1 (24 max)\n" +
	"\n" +
	"# userid name                uniqueid            connected ping loss state  adr\n" +
	"#      7 \"Dana\"              [U:1:99]            00:45       31    0 active 192.0.2.9:27005\x00\n"

func TestParseModern(t *testing.T) {
	info := Parse(modernStatus)

	assert.Equal(t, "Practice Server", info.Hostname)
	assert.Equal(t, "1.38.7.9/13879", info.Version)
	assert.Equal(t, "0.0.0.0:27015", info.Address)
	assert.Equal(t, "Linux", info.OS)
	assert.Equal(t, "community dedicated", info.Type)
	assert.Equal(t, "de_dust2", info.Map)
	assert.Equal(t, 2, info.Humans)
	assert.Equal(t, 1, info.Bots)
	assert.Equal(t, 16, info.MaxPlayers)

	require.Len(t, info.Players, 3)

	alice := info.Players[0]
	assert.Equal(t, 2, alice.UserID)
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, "STEAM_1:0:123", alice.UniqueID)
	assert.Equal(t, 5*time.Minute+12*time.Second, alice.Connected)
	assert.Equal(t, 50, alice.Ping)
	assert.Equal(t, "active", alice.State)
	assert.Equal(t, "198.51.100.4:27005", alice.Address)
	assert.False(t, alice.Bot)

	bob := info.Players[1]
	assert.Equal(t, `Bob the \"Builder\"`, bob.Name)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, bob.Connected)
	assert.Equal(t, 1, bob.Loss)

	bot := info.Players[2]
	assert.True(t, bot.Bot)
	assert.Equal(t, "Bot Carl", bot.Name)
	assert.Equal(t, "active", bot.State)
}

func TestParseLegacy(t *testing.T) {
	info := Parse(legacyStatus)

	assert.Equal(t, "Old Server", info.Hostname)
	assert.Equal(t, "cp_badlands", info.Map)
	assert.Equal(t, 1, info.Humans)
	assert.Equal(t, 24, info.MaxPlayers)

	require.Len(t, info.Players, 1)
	assert.Equal(t, 7, info.Players[0].UserID)
	assert.Equal(t, "[U:1:99]", info.Players[0].UniqueID)
	assert.Equal(t, 45*time.Second, info.Players[0].Connected)
	assert.Equal(t, "192.0.2.9:27005", info.Players[0].Address)
}

func TestParseCountsRowsWithoutPlayersLine(t *testing.T) {
	info := Parse("map : arena\n# 1 \"A\" [U:1:1] 00:10 20 0 active 1.1.1.1:1\n# 2 \"B\" BOT active\n")
	assert.Equal(t, 1, info.Humans)
	assert.Equal(t, 1, info.Bots)
}

func TestParseGarbage(t *testing.T) {
	info := Parse("Unknown command \"status\"\n")
	assert.Empty(t, info.Hostname)
	assert.Empty(t, info.Players)
	assert.NotNil(t, info.Players)
}

func TestParseConnected(t *testing.T) {
	assert.Equal(t, 90*time.Second, parseConnected("01:30"))
	assert.Equal(t, time.Duration(0), parseConnected("x"))
	assert.Equal(t, time.Duration(0), parseConnected("12"))
}
