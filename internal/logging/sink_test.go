package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lineRe = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] (INFO|WARN|ERROR): .+$`)

func TestSink_LineFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := New(Options{Console: buf})

	sink.Infof("hello %s", "world")
	sink.Warnf("careful")
	sink.Errorf("broken")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Regexp(t, lineRe, line)
	}
	assert.Contains(t, lines[0], "INFO: hello world")
	assert.Contains(t, lines[1], "WARN: careful")
	assert.Contains(t, lines[2], "ERROR: broken")
}

func TestSink_DualDestination(t *testing.T) {
	buf := &bytes.Buffer{}
	logFile := filepath.Join(t.TempDir(), "run.log")
	sink := New(Options{Console: buf, FilePath: logFile})

	sink.Infof("both places")

	assert.Contains(t, buf.String(), "both places")
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "both places")
}

func TestSink_Banner(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := New(Options{Console: buf})

	sink.Banner("STEP 1: Prune old dumps")

	out := buf.String()
	assert.Contains(t, out, strings.Repeat("=", 60))
	assert.Contains(t, out, "STEP 1: Prune old dumps")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
}

func TestInit_Idempotent(t *testing.T) {
	first := Init(Options{Console: &bytes.Buffer{}})
	second := Init(Options{Console: &bytes.Buffer{}})

	assert.Same(t, first, second)
}

func TestSelectDecorator_NonTTY(t *testing.T) {
	dec := SelectDecorator(&bytes.Buffer{})

	_, plain := dec.(PlainDecorator)
	assert.True(t, plain)
	assert.Equal(t, "title", dec.Title("title"))
}

func TestStyledDecorator_RendersText(t *testing.T) {
	dec := NewStyledDecorator()

	assert.Contains(t, dec.Title("header"), "header")
	assert.Contains(t, dec.OK("done"), "done")
	assert.Contains(t, dec.Fail("broken"), "broken")
}
