package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace":   TRACE,
		"DEBUG":   DEBUG,
		" info ":  INFO,
		"warning": WARN,
		"error":   ERROR,
		"":        INFO,
		"bogus":   INFO,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	SetOptions(Options{Dir: dir, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	defer SetOptions(DefaultOptions())

	l, err := NewLogger("unit")
	require.NoError(t, err)
	l.SetLevels(ERROR, DEBUG)

	l.Debug("move %d applied", 7)
	l.Trace("dropped below file level")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "unit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "move 7 applied")
	assert.NotContains(t, string(data), "dropped below file level")
}

func TestRegistryReusesLoggers(t *testing.T) {
	SetOptions(Options{Dir: t.TempDir(), MaxSizeMB: 1})
	defer SetOptions(DefaultOptions())

	r := newRegistry()
	a := r.get(ComponentNetwork)
	assert.Same(t, a, r.get(ComponentNetwork))
	assert.Equal(t, []string{ComponentNetwork}, r.names())

	r.setLevel(ERROR)
	console, file := a.levels()
	assert.Equal(t, ERROR, console)
	assert.Equal(t, DEBUG, file)

	// уровень применяется и к логгерам, созданным позже
	b := r.get(ComponentGame)
	console, _ = b.levels()
	assert.Equal(t, ERROR, console)
	assert.Equal(t, []string{ComponentGame, ComponentNetwork}, r.names())

	assert.NoError(t, r.close())
	assert.Empty(t, r.names())
}

func TestHexDumpTruncates(t *testing.T) {
	assert.Equal(t, "No data", HexDump(nil))
	big := make([]byte, 1000)
	assert.Less(t, len(HexDump(big)), len(big)*5)
}
