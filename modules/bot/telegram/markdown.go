package telegram

import "strings"

// markdownV2SpecialChars lists all characters that must be escaped in Telegram MarkdownV2.
var markdownV2SpecialChars = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`(`, `\(`,
	`)`, `\)`,
	`~`, `\~`,
	"`", "\\`",
	`>`, `\>`,
	`#`, `\#`,
	`+`, `\+`,
	`-`, `\-`,
	`=`, `\=`,
	`|`, `\|`,
	`{`, `\{`,
	`}`, `\}`,
	`.`, `\.`,
	`!`, `\!`,
)

// EscapeMarkdownV2 escapes all special characters for Telegram MarkdownV2 format.
func EscapeMarkdownV2(text string) string {
	return markdownV2SpecialChars.Replace(text)
}

// FormatMarkdownV2 escapes text for MarkdownV2 while keeping `code` spans
// and [label](url) links intact.
func FormatMarkdownV2(text string) string {
	runes := []rune(text)
	n := len(runes)
	var b strings.Builder

	for i := 0; i < n; {
		switch runes[i] {
		case '`':
			if end := findClosing(runes, i+1, '`'); end > 0 {
				b.WriteString(string(runes[i : end+1]))
				i = end + 1
				continue
			}
		case '[':
			labelEnd := findClosing(runes, i+1, ']')
			if labelEnd > 0 && labelEnd+1 < n && runes[labelEnd+1] == '(' {
				if urlEnd := findClosing(runes, labelEnd+2, ')'); urlEnd > 0 {
					b.WriteByte('[')
					b.WriteString(EscapeMarkdownV2(string(runes[i+1 : labelEnd])))
					b.WriteString("](")
					b.WriteString(strings.ReplaceAll(string(runes[labelEnd+2:urlEnd]), `\`, `\\`))
					b.WriteByte(')')
					i = urlEnd + 1
					continue
				}
			}
		}
		b.WriteString(EscapeMarkdownV2(string(runes[i])))
		i++
	}
	return b.String()
}

// findClosing returns the index of delim at or after start, or -1.
func findClosing(runes []rune, start int, delim rune) int {
	for i := start; i < len(runes); i++ {
		if runes[i] == delim {
			return i
		}
	}
	return -1
}
