package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// PrettyOptions configures a PrettyHandler.
type PrettyOptions struct {
	Level   slog.Leveler
	NoColor bool
}

// PrettyHandler writes one human-readable line per record:
//
//	15:04:05.000 INFO  message key=value group.key=value
type PrettyHandler struct {
	opts  PrettyOptions
	mu    *sync.Mutex
	w     io.Writer
	group string
	attrs []slog.Attr
}

// NewPrettyHandler creates a new PrettyHandler. A nil opts logs at info
// with colour.
func NewPrettyHandler(w io.Writer, opts *PrettyOptions) *PrettyHandler {
	h := &PrettyHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	h.paint(&b, colorGray, r.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	h.paint(&b, levelColor(r.Level)+colorBold, fmt.Sprintf("%-5s", r.Level.String()))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	var fields strings.Builder
	for _, a := range h.attrs {
		appendAttr(&fields, a, "")
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&fields, a, h.group)
		return true
	})
	if fields.Len() > 0 {
		h.paint(&b, colorCyan, fields.String())
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyHandler) paint(b *strings.Builder, color, s string) {
	if h.opts.NoColor {
		b.WriteString(s)
		return
	}
	b.WriteString(color)
	b.WriteString(s)
	b.WriteString(colorReset)
}

// WithAttrs returns a handler that prefixes attrs to every record. Attrs
// added inside a group are qualified by it at the time they are added.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := h.clone()
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		out.attrs = append(out.attrs, a)
	}
	return out
}

// WithGroup qualifies the keys of later attributes with name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := h.clone()
	if out.group != "" {
		out.group += "." + name
	} else {
		out.group = name
	}
	return out
}

func (h *PrettyHandler) clone() *PrettyHandler {
	out := *h
	out.attrs = append([]slog.Attr(nil), h.attrs...)
	return &out
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorBlue
	default:
		return colorGray
	}
}

func appendAttr(b *strings.Builder, a slog.Attr, group string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		prefix := a.Key
		if group != "" && prefix != "" {
			prefix = group + "." + prefix
		} else if prefix == "" {
			prefix = group
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, ga, prefix)
		}
		return
	}

	b.WriteByte(' ')
	if group != "" {
		b.WriteString(group)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if needsQuoting(s) {
			s = strconv.Quote(s)
		}
		b.WriteString(s)
	case slog.KindTime:
		b.WriteString(a.Value.Time().Format(time.RFC3339))
	case slog.KindDuration:
		b.WriteString(a.Value.Duration().String())
	default:
		fmt.Fprint(b, a.Value.Any())
	}
}

func needsQuoting(s string) bool {
	return strings.ContainsAny(s, " \t\n\r\"=")
}
