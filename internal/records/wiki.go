// ABOUTME: Wiki page paths, page and template construction
// ABOUTME: Pages are keyed by normalized path so the same page is reached however the path is typed

package records

import (
	"strings"
	"unicode"
)

// NormalizePath lowercases p, turns whitespace runs into dashes, collapses repeated
// slashes and strips leading and trailing slashes. "  Team / Road Map/ " becomes
// "team/road-map".
func NormalizePath(p string) string {
	var segments []string
	for _, seg := range strings.Split(p, "/") {
		seg = strings.Join(strings.Fields(strings.ToLower(seg)), "-")
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return strings.Join(segments, "/")
}

// TitleFromPath derives a display title from the last path segment.
func TitleFromPath(path string) string {
	seg := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		seg = path[i+1:]
	}
	words := strings.FieldsFunc(seg, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// NewWikiPage builds page metadata for an already-normalized path. An empty title is
// derived from the path.
func NewWikiPage(path, wikiID, title string) WikiPage {
	title = strings.TrimSpace(title)
	if title == "" {
		title = TitleFromPath(path)
	}
	return WikiPage{
		ID:        NewID(),
		Path:      path,
		Title:     title,
		WikiID:    wikiID,
		CreatedAt: Now(),
	}
}

// NewWikiTemplate builds a template with a fresh id.
func NewWikiTemplate(name, description, content string) WikiTemplate {
	return WikiTemplate{
		ID:          NewID(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Content:     content,
		CreatedAt:   Now(),
	}
}
