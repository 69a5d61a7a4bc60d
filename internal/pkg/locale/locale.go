// Package locale formats numeric template data the way recipients read it.
package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders numbers for one locale.
type Formatter struct {
	p *message.Printer
}

// New returns a Formatter for the BCP 47 tag, falling back to English.
func New(tag string) *Formatter {
	t, err := language.Parse(tag)
	if err != nil {
		t = language.English
	}
	return &Formatter{p: message.NewPrinter(t)}
}

// Number formats an integer or float with locale digit grouping.
func (f *Formatter) Number(v any) string {
	switch n := v.(type) {
	case float32, float64:
		return f.p.Sprintf("%.2f", n)
	default:
		return f.p.Sprintf("%d", n)
	}
}

// Data returns a copy of data with every numeric value replaced by its
// formatted string. Nested maps are formatted recursively.
func (f *Formatter) Data(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			out[k] = f.Number(n)
		case map[string]any:
			out[k] = f.Data(n)
		default:
			out[k] = v
		}
	}
	return out
}
