package logx

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func setup(t *testing.T, o Options) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	o.Writer = &buf
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	Setup(o)
	return &buf
}

func TestPretty_ChineseLabels(t *testing.T) {
	buf := setup(t, Options{Level: "debug", Format: "pretty", Locale: "zh-CN", Color: "never"})
	Infof("hello %s", "world")
	Debugf("dbg")
	assert.Contains(t, buf.String(), "[信息] hello world")
	assert.Contains(t, buf.String(), "[调试] dbg")
}

func TestPretty_EnglishLabelsAndLevelFilter(t *testing.T) {
	buf := setup(t, Options{Level: "warn", Format: "pretty", Locale: "en", Color: "never"})
	Infof("hidden")
	Warnf("shown")
	Errorf("bad")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown")
	assert.Contains(t, out, "[ERROR] bad")
}

func TestPretty_KeyValuesAndGroups(t *testing.T) {
	buf := setup(t, Options{Level: "info", Format: "pretty", Locale: "en", Color: "never"})
	Info("posted", "id", "123", "title", "two words")
	slog.Default().WithGroup("record").With("url", "https://ex/a").Info("failed", "kind", "transport")
	out := buf.String()
	assert.Contains(t, out, `posted id=123 title="two words"`)
	assert.Contains(t, out, "record.url=https://ex/a")
	assert.Contains(t, out, "record.kind=transport")
}

func TestSilentLevel(t *testing.T) {
	buf := setup(t, Options{Level: "off", Format: "pretty", Color: "never"})
	Errorf("nothing")
	assert.Empty(t, buf.String())
}

func TestJSONFormat(t *testing.T) {
	buf := setup(t, Options{Level: "info", Format: "json"})
	Info("summary", "posted", 2, "eligible", 3)
	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(line, "{"))
	assert.Contains(t, line, `"posted":2`)
}

func TestColorAlways(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	buf := setup(t, Options{Level: "info", Format: "pretty", Locale: "en", Color: "always"})
	Warnf("w")
	assert.Contains(t, buf.String(), "\x1b[33m[WARN]\x1b[0m")
}
