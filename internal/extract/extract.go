// Package extract parses labeled, fenced content blocks out of model responses.
//
// A labeled block looks like:
//
//	**executor.py**
//	```python
//	...content...
//	```
//
// Only the label line before the opening fence identifies a block; the tag after
// the opening fence is recorded but never used for matching.
package extract

import (
	"strings"
)

const fence = "```"

// Block is one labeled, fenced section of a response.
type Block struct {
	Label string
	Tag   string
	Body  string
}

// Extract returns the body of the block labeled label.
// An exact label match wins; a case-insensitive match is used only when no exact
// match exists. The second return value is false when no block carries the label.
func Extract(response, label string) (string, bool) {
	want := strings.TrimSpace(label)
	if want == "" {
		return "", false
	}

	blocks := Blocks(response)
	for _, b := range blocks {
		if b.Label == want {
			return b.Body, true
		}
	}
	for _, b := range blocks {
		if strings.EqualFold(b.Label, want) {
			return b.Body, true
		}
	}
	return "", false
}

// Blocks parses every labeled block in response, in order of appearance.
// Fences without a preceding label are skipped. An unterminated final fence
// runs to the end of the response.
func Blocks(response string) []Block {
	lines := strings.Split(strings.ReplaceAll(response, "\r\n", "\n"), "\n")

	var blocks []Block
	label := ""
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		if l, ok := parseLabel(line); ok {
			label = l
			continue
		}

		if !strings.HasPrefix(line, fence) {
			if line != "" {
				// Prose between a label and its fence detaches the label.
				label = ""
			}
			continue
		}

		tag := strings.TrimSpace(strings.TrimPrefix(line, fence))
		body, next := readBody(lines, i+1)
		i = next

		if label == "" {
			continue
		}
		blocks = append(blocks, Block{Label: label, Tag: tag, Body: body})
		label = ""
	}
	return blocks
}

// readBody collects lines starting at start until the closing fence.
// It returns the body and the index of the closing fence line.
func readBody(lines []string, start int) (string, int) {
	var body []string
	for j := start; j < len(lines); j++ {
		raw := lines[j]
		trimmed := strings.TrimSpace(raw)
		if trimmed == fence {
			return strings.Join(body, "\n"), j
		}
		if strings.HasSuffix(trimmed, fence) && !strings.HasPrefix(trimmed, fence) {
			body = append(body, strings.TrimSuffix(strings.TrimRight(raw, " \t"), fence))
			return strings.Join(body, "\n"), j
		}
		body = append(body, raw)
	}
	return strings.TrimSuffix(strings.Join(body, "\n"), "\n"), len(lines)
}

// parseLabel recognises a label line such as **name**, **`name`** or ### **name**:.
func parseLabel(line string) (string, bool) {
	line = strings.TrimLeft(line, "# ")
	line = strings.TrimSuffix(line, ":")
	if len(line) < 5 || !strings.HasPrefix(line, "**") || !strings.HasSuffix(line, "**") {
		return "", false
	}
	inner := strings.TrimSpace(line[2 : len(line)-2])
	inner = strings.TrimSuffix(inner, ":")
	inner = strings.TrimSpace(strings.Trim(inner, "`"))
	if inner == "" || strings.Contains(inner, "**") {
		return "", false
	}
	return inner, true
}

// Wrap renders content as a labeled block that Extract can read back.
func Wrap(content, label, tag string) string {
	return "**" + label + "**\n" + fence + tag + "\n" + content + "\n" + fence + "\n\n"
}
