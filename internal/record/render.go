package record

import (
	"strings"
)

// Render writes trees as an indented plain-text outline, one item per line:
//
//	- [x] Buy milk #green (id)
//
// The state marker is omitted for items without a state.
func Render(trees []*Item) string {
	var b strings.Builder
	for _, t := range trees {
		t.Walk(func(n *Item) bool {
			renderLine(&b, n, n.Depth()-t.Depth())
			return true
		})
	}
	return b.String()
}

func renderLine(b *strings.Builder, n *Item, depth int) {
	data := n.Data()
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("- ")
	if data.State != nil {
		switch *data.State {
		case StateDone:
			b.WriteString("[x] ")
		case StateTrashed:
			b.WriteString("[-] ")
		default:
			b.WriteString("[ ] ")
		}
	}
	b.WriteString(data.TextValue())
	if data.Tag != nil {
		b.WriteString(" #")
		b.WriteString(data.Tag.String())
	}
	b.WriteString(" (")
	b.WriteString(n.ID())
	b.WriteString(")\n")
}
