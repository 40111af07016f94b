package service

import (
	"fmt"
	"strings"
)

// plotKeywords flag sentences that carry a narrative delta.
var plotKeywords = []string{"discovered", "revealed", "decided", "confronted", "realized"}

const maxPlotPoints = 3

// ExtractRecap splits a generated chapter into prose and its trailing
// recap block. ok is false when the backend ignored the instruction, in
// which case the caller falls back to a dedicated recap call.
func ExtractRecap(text string) (body, recap string, ok bool) {
	idx := strings.LastIndex(text, RecapMarker)
	if idx < 0 {
		return text, "", false
	}
	recap = strings.TrimSpace(text[idx+len(RecapMarker):])
	body = strings.TrimSpace(text[:idx])
	if recap == "" || body == "" {
		return text, "", false
	}
	return body, recap, true
}

// ExtractTitle takes the first line as the title when it looks like a
// chapter heading, otherwise synthesizes one from the main theme.
func ExtractTitle(content string, chapterNumber int, theme string) string {
	firstLine := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	if len(firstLine) > 0 && len(firstLine) < 100 {
		lower := strings.ToLower(firstLine)
		if strings.Contains(lower, "chapter") || strings.Contains(lower, "part") {
			return firstLine
		}
	}
	return fmt.Sprintf("Chapter %d: %s Continues", chapterNumber, theme)
}

// ExtractPlotPoints returns up to three sentences that contain a plot
// keyword, in document order.
func ExtractPlotPoints(content string) []string {
	var points []string
	for _, sentence := range strings.Split(content, ".") {
		lower := strings.ToLower(sentence)
		for _, keyword := range plotKeywords {
			if strings.Contains(lower, keyword) {
				if trimmed := strings.TrimSpace(sentence); trimmed != "" {
					points = append(points, trimmed)
				}
				break
			}
		}
		if len(points) == maxPlotPoints {
			break
		}
	}
	return points
}

// ExtractCharacters returns the cast members mentioned in the content,
// matched case-insensitively, preserving cast order.
func ExtractCharacters(content string, cast []string) []string {
	lower := strings.ToLower(content)
	var mentioned []string
	for _, name := range cast {
		if name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(name)) {
			mentioned = append(mentioned, name)
		}
	}
	return mentioned
}

// CountWords counts whitespace-separated words.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
