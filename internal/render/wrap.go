package render

import "strings"

// wrapText breaks text into lines no wider than width according to measure.
// Explicit newlines always break; words longer than width stand on their own line.
func wrapText(text string, width float64, measure func(string) float64) []string {
	var lines []string
	for paragraph := range strings.SplitSeq(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		if width <= 0 {
			lines = append(lines, strings.Join(words, " "))
			continue
		}
		current := words[0]
		for _, w := range words[1:] {
			candidate := current + " " + w
			if measure(candidate) <= width {
				current = candidate
				continue
			}
			lines = append(lines, current)
			current = w
		}
		lines = append(lines, current)
	}
	return lines
}
