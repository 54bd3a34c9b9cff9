package orchestrator

import (
	"regexp"
	"strings"
)

// sentencePattern matches a clause together with its trailing punctuation run.
var sentencePattern = regexp.MustCompile(`[。！？!?…]*[^。！？!?…]+[。！？!?…]*`)

// SplitReply splits a reply into message bubbles. Text with line breaks is
// split per line with blank lines dropped; otherwise it is split after
// sentence-ending punctuation. Text without split points is one chunk.
func SplitReply(text string) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}

	var chunks []string
	if strings.Contains(text, "\n") {
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				chunks = append(chunks, line)
			}
		}
		return chunks
	}

	for _, match := range sentencePattern.FindAllString(text, -1) {
		if match = strings.TrimSpace(match); match != "" {
			chunks = append(chunks, match)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
