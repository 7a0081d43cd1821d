package rframe

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// DisplayConfig controls how DataFrames are formatted when printed.
type DisplayConfig struct {
	// MaxRows is the maximum number of rows to display. Longer tables end
	// with an ellipsis line.
	// Default: 20
	MaxRows int `mapstructure:"max_rows" yaml:"max_rows"`

	// ColWidth is the maximum width of a column. Longer values are
	// truncated with "…".
	// Default: 25
	ColWidth int `mapstructure:"col_width" yaml:"col_width"`
}

// DefaultDisplayConfig returns the default display configuration.
func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{MaxRows: 20, ColWidth: 25}
}

var (
	globalDisplayConfig = DefaultDisplayConfig()
	displayConfigMu     sync.RWMutex
)

// SetDisplayConfig sets the global display configuration.
func SetDisplayConfig(cfg DisplayConfig) {
	displayConfigMu.Lock()
	defer displayConfigMu.Unlock()
	globalDisplayConfig = cfg
}

// GetDisplayConfig returns the current global display configuration.
func GetDisplayConfig() DisplayConfig {
	displayConfigMu.RLock()
	defer displayConfigMu.RUnlock()
	return globalDisplayConfig
}

// SetMaxDisplayRows sets the maximum number of rows to display.
func SetMaxDisplayRows(n int) {
	displayConfigMu.Lock()
	defer displayConfigMu.Unlock()
	globalDisplayConfig.MaxRows = n
}

// truncate shortens s to width runes, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	r := []rune(s)
	return string(r[:width-1]) + "…"
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// String renders the table with the global display configuration.
func (df *DataFrame) String() string {
	return df.StringWithConfig(GetDisplayConfig())
}

// StringWithConfig renders the table: a shape line, a "name <type>" header,
// a dash separator, then up to cfg.MaxRows rows.
func (df *DataFrame) StringWithConfig(cfg DisplayConfig) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DataFrame: %d rows × %d columns\n", df.height, df.Width())
	if df.Width() == 0 {
		return sb.String()
	}

	shown := df.height
	if cfg.MaxRows >= 0 && shown > cfg.MaxRows {
		shown = cfg.MaxRows
	}
	headers := make([]string, df.Width())
	cells := make([][]string, df.Width())
	widths := make([]int, df.Width())
	for j, name := range df.colOrder {
		c := df.columns[name]
		headers[j] = truncate(fmt.Sprintf("%s <%s>", name, c.dtype), cfg.ColWidth)
		widths[j] = utf8.RuneCountInString(headers[j])
		cells[j] = make([]string, shown)
		for i := 0; i < shown; i++ {
			cells[j][i] = truncate(c.CellString(i), cfg.ColWidth)
			widths[j] = max(widths[j], utf8.RuneCountInString(cells[j][i]))
		}
	}

	line := func(field func(j int) string) {
		for j := range df.colOrder {
			if j > 0 {
				sb.WriteByte(' ')
			}
			if j == len(df.colOrder)-1 {
				sb.WriteString(field(j))
			} else {
				sb.WriteString(pad(field(j), widths[j]))
			}
		}
		sb.WriteByte('\n')
	}
	line(func(j int) string { return headers[j] })
	line(func(j int) string { return strings.Repeat("-", widths[j]) })
	for i := 0; i < shown; i++ {
		line(func(j int) string { return cells[j][i] })
	}
	if shown < df.height {
		sb.WriteString("…\n")
	}
	return sb.String()
}
