// Package content formats raw section markdown for presentation.
//
// An external Formatter (typically LLM-assisted) may be plugged in; any
// failure there falls back to the deterministic manual conversion so a
// turn never blocks on the formatting provider.
package content

import (
	"context"
	"regexp"
	"strings"
)

// Formatter renders raw section markdown into presentable markup.
// Implementations live outside the engine core.
type Formatter interface {
	Format(ctx context.Context, raw string) (string, error)
}

// FormatterFunc adapts a function to the Formatter interface.
type FormatterFunc func(ctx context.Context, raw string) (string, error)

// Format satisfies Formatter.
func (f FormatterFunc) Format(ctx context.Context, raw string) (string, error) {
	return f(ctx, raw)
}

var (
	boldPattern   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern = regexp.MustCompile(`\*([^*]+)\*`)
)

// FormatSection renders raw markdown with the given formatter, falling
// back to Convert when the formatter is nil or fails.
func FormatSection(ctx context.Context, formatter Formatter, raw string) string {
	if formatter != nil {
		formatted, err := formatter.Format(ctx, raw)
		if err == nil && strings.TrimSpace(formatted) != "" {
			return formatted
		}
	}
	return Convert(raw)
}

// Convert performs the deterministic manual markdown conversion:
// headings and emphasis become HTML-equivalent markup, everything else
// passes through unchanged. Choice tokens such as [[42]] are preserved
// verbatim so downstream extraction keeps working.
func Convert(raw string) string {
	lines := strings.Split(raw, "\n")
	converted := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		switch {
		case strings.HasPrefix(trimmed, "### "):
			converted = append(converted, "<h3>"+convertEmphasis(strings.TrimPrefix(trimmed, "### "))+"</h3>")
		case strings.HasPrefix(trimmed, "## "):
			converted = append(converted, "<h2>"+convertEmphasis(strings.TrimPrefix(trimmed, "## "))+"</h2>")
		case strings.HasPrefix(trimmed, "# "):
			converted = append(converted, "<h1>"+convertEmphasis(strings.TrimPrefix(trimmed, "# "))+"</h1>")
		default:
			converted = append(converted, convertEmphasis(trimmed))
		}
	}

	return strings.Join(converted, "\n")
}

// convertEmphasis rewrites bold before italics so ** pairs are not
// consumed as two single asterisks.
func convertEmphasis(line string) string {
	line = boldPattern.ReplaceAllString(line, "<strong>$1</strong>")
	line = italicPattern.ReplaceAllString(line, "<em>$1</em>")
	return line
}
