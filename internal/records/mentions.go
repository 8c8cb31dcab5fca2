// ABOUTME: Mention parsing: @name tokens in message content
// ABOUTME: The prompt handed to a bot is the content with its mention token removed

package records

import (
	"regexp"
	"slices"
	"strings"
)

// Mention is one @name reference found in message content.
type Mention struct {
	Name   string // lowercase, without the @
	Prompt string
}

var mentionPattern = regexp.MustCompile(`(^|[\s(\[])@([A-Za-z0-9][A-Za-z0-9_-]*)`)

// ParseMentions returns the distinct mentions in content, in order of first appearance.
// An @ inside a word (mail addresses) is not a mention.
func ParseMentions(content string) []Mention {
	matches := mentionPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}

	var names []string
	for _, m := range matches {
		name := strings.ToLower(content[m[4]:m[5]])
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}

	out := make([]Mention, 0, len(names))
	for _, name := range names {
		out = append(out, Mention{Name: name, Prompt: stripMention(content, name)})
	}
	return out
}

// stripMention removes every @name token for name and collapses the leftover whitespace.
func stripMention(content, name string) string {
	var b strings.Builder
	last := 0
	for _, m := range mentionPattern.FindAllStringSubmatchIndex(content, -1) {
		if strings.ToLower(content[m[4]:m[5]]) != name {
			continue
		}
		b.WriteString(content[last:m[3]])
		last = m[5]
	}
	b.WriteString(content[last:])
	return strings.Join(strings.Fields(b.String()), " ")
}
