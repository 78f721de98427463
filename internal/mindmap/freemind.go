package mindmap

import (
	"strconv"
	"strings"
)

// SerializeFreeMind renders a mindmap into FreeMind XML. The output is
// byte-stable for identical input: pre-order traversal, two-space indent per
// depth level, fixed attribute order (TEXT, LINK, COLOR, PRIORITY).
func SerializeFreeMind(m *Mindmap) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<map version=\"1.0.1\">\n")
	serializeNode(&b, m.Root, 2)
	b.WriteString("\n</map>")
	return b.String()
}

func serializeNode(b *strings.Builder, node *Node, indent int) {
	pad := strings.Repeat(" ", indent)
	b.WriteString(pad)
	b.WriteString("<node TEXT=\"")
	b.WriteString(escapeXML(node.Text))
	b.WriteString("\"")
	if node.Link != "" {
		b.WriteString(" LINK=\"")
		b.WriteString(escapeXML(node.Link))
		b.WriteString("\"")
	}
	if node.Color != "" {
		b.WriteString(" COLOR=\"")
		b.WriteString(escapeXML(node.Color))
		b.WriteString("\"")
	}
	if node.Priority != nil {
		b.WriteString(" PRIORITY=\"")
		b.WriteString(escapeXML(strconv.Itoa(*node.Priority)))
		b.WriteString("\"")
	}

	if len(node.Children) == 0 {
		b.WriteString("/>")
		return
	}

	b.WriteString(">\n")
	for i, child := range node.Children {
		serializeNode(b, child, indent+2)
		if i < len(node.Children)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(pad)
	b.WriteString("</node>")
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

func escapeXML(value string) string {
	return xmlReplacer.Replace(value)
}
