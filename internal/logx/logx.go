// 包 logx 是对标准库 slog 的薄封装：
// - 支持级别/格式/语言/颜色配置，可指定输出目标
// - pretty 输出（[调试]/[信息]/[警告]/[错误] 或英文标签），属性按分组展开
// - 同时提供 printf 风格（Infof）与键值风格（Info）两套入口
package logx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// levelOff 用于关闭全部输出。
const levelOff slog.Level = 100

// Options 为日志初始化参数，字段与 settings.yaml 的 LOG_* 对应。
type Options struct {
	Level  string
	Format string // pretty|json|text
	Locale string // zh-CN|en
	Color  string // auto|always|never
	Writer io.Writer
}

// Init 按 level/format/locale/colorMode 初始化全局日志器，输出到 stdout。
func Init(level, format, locale, colorMode string) {
	Setup(Options{Level: level, Format: format, Locale: locale, Color: colorMode})
}

// Setup 按 Options 初始化全局日志器；Writer 为空时输出到 stdout。
func Setup(o Options) {
	w := o.Writer
	if w == nil {
		w = os.Stdout
	}
	lv := parseSlogLevel(o.Level)
	opts := &slog.HandlerOptions{Level: lv}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(o.Format)) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "pretty", "":
		handler = NewPrettyHandler(w, lv, o.Locale, o.Color)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseSlogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none", "silent", "off":
		return levelOff
	default:
		return slog.LevelInfo
	}
}

// printf 风格
func Debugf(format string, v ...any) { slog.Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { slog.Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { slog.Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { slog.Error(fmt.Sprintf(format, v...)) }

// 键值风格：Info("已发布", "id", id, "url", u)
func Debug(msg string, kv ...any) { slog.Debug(msg, kv...) }
func Info(msg string, kv ...any)  { slog.Info(msg, kv...) }
func Warn(msg string, kv ...any)  { slog.Warn(msg, kv...) }
func Error(msg string, kv ...any) { slog.Error(msg, kv...) }

// PrettyHandler：面向人读的单行输出，可选彩色，支持中英文标签。
type PrettyHandler struct {
	w      io.Writer
	level  slog.Leveler
	locale string
	color  bool
	mu     *sync.Mutex
	attrs  []slog.Attr
	group  string
}

// NewPrettyHandler 创建 pretty Handler。
func NewPrettyHandler(w io.Writer, lv slog.Leveler, locale string, colorMode string) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	if locale == "" {
		locale = "zh-CN"
	}
	return &PrettyHandler{w: w, level: lv, locale: locale, color: shouldColor(w, colorMode), mu: &sync.Mutex{}}
}

func (h *PrettyHandler) Enabled(_ context.Context, l slog.Level) bool {
	min := h.level.Level()
	return min < levelOff && l >= min
}

// Handle 输出：时间 等级 消息 k=v...
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(ts.Format("2006-01-02 15:04:05"))
	buf.WriteByte(' ')
	lvl := levelLabel(h.locale, r.Level)
	if h.color {
		lvl = colorize(lvl, r.Level)
	}
	buf.WriteString(lvl)
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.group, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// writeAttr 展平属性；分组属性以 group.key 输出，含空格的值加引号。
func writeAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(buf, key, ga)
		}
		return
	}
	val := a.Value.String()
	if strings.ContainsAny(val, " \t\n\"") {
		val = fmt.Sprintf("%q", val)
	}
	buf.WriteByte(' ')
	buf.WriteString(key)
	buf.WriteByte('=')
	buf.WriteString(val)
}

// WithAttrs 预绑定属性时即带上当前分组前缀。
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	cp.attrs = append(cp.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		cp.attrs = append(cp.attrs, a)
	}
	return &cp
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	if cp.group == "" {
		cp.group = name
	} else {
		cp.group += "." + name
	}
	return &cp
}

func levelLabel(locale string, l slog.Level) string {
	zh := strings.HasPrefix(strings.ToLower(locale), "zh")
	switch {
	case l < slog.LevelInfo:
		return pick(zh, "[调试]", "[DEBUG]")
	case l < slog.LevelWarn:
		return pick(zh, "[信息]", "[INFO]")
	case l < slog.LevelError:
		return pick(zh, "[警告]", "[WARN]")
	default:
		return pick(zh, "[错误]", "[ERROR]")
	}
}

func pick(zh bool, a, b string) string {
	if zh {
		return a
	}
	return b
}

// shouldColor 遵循 LOG_COLOR 与 NO_COLOR；auto 仅在终端上启用。
func shouldColor(w io.Writer, mode string) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "always":
		return true
	case "auto", "":
		if f, ok := w.(*os.File); ok {
			if fi, err := f.Stat(); err == nil {
				return fi.Mode()&os.ModeCharDevice != 0
			}
		}
	}
	return false
}

func colorize(s string, l slog.Level) string {
	code := "36"
	switch {
	case l < slog.LevelInfo:
		code = "90"
	case l >= slog.LevelError:
		code = "31"
	case l >= slog.LevelWarn:
		code = "33"
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}
