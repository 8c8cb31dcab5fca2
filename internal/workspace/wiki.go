// ABOUTME: Document-backed wiki pages, page bodies and templates
// ABOUTME: Pages are keyed by normalized path; bodies live in one text container per page id

package workspace

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"

	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/records"
)

func pageContentName(pageID string) string {
	return pageContentPrefix + pageID
}

// CreatePage creates the page at path. Creating a page at an existing path returns the
// existing record unchanged with records.Unchanged.
func (h *Handle) CreatePage(path, wikiID, title string) (records.WikiPage, records.Result, error) {
	return h.createPage(path, wikiID, title, nil)
}

// CreatePageFromTemplate creates the page and fills its body from a template in one
// transaction. An unknown template is records.NotFound and creates nothing.
func (h *Handle) CreatePageFromTemplate(path, wikiID, title, templateID string) (records.WikiPage, records.Result, error) {
	tmpl, ok := h.templates.Get(templateID)
	if !ok {
		return records.WikiPage{}, records.NotFound, nil
	}
	return h.createPage(path, wikiID, title, &tmpl.Content)
}

func (h *Handle) createPage(path, wikiID, title string, body *string) (records.WikiPage, records.Result, error) {
	key := records.NormalizePath(path)
	if key == "" {
		return records.WikiPage{}, records.NotFound, records.ErrEmptyPath
	}

	var (
		page records.WikiPage
		res  records.Result
	)
	err := h.transact(func(tx *crdt.Txn) error {
		pages := h.pages.In(tx)
		if existing, ok := pages.Get(key); ok {
			page, res = existing, records.Unchanged
			return nil
		}
		page, res = records.NewWikiPage(key, wikiID, title), records.Applied
		if err := pages.Set(key, page); err != nil {
			return err
		}
		if body != nil {
			return h.doc.Text(pageContentName(page.ID)).In(tx).Insert(0, *body)
		}
		return nil
	})
	if err != nil {
		return records.WikiPage{}, records.NotFound, err
	}
	if res == records.Applied {
		h.logger.Info("page created", "path", key, "page_id", page.ID)
	}
	return page, res, nil
}

// GetPage returns the page at path.
func (h *Handle) GetPage(path string) (records.WikiPage, bool) {
	return h.pages.Get(records.NormalizePath(path))
}

// ListPages returns every page ordered by path.
func (h *Handle) ListPages() []records.WikiPage {
	return nonNil(h.pages.Values())
}

// DeletePage removes the page at path. Its body container is left in the document.
func (h *Handle) DeletePage(path string) (records.Result, error) {
	key := records.NormalizePath(path)
	res := records.NotFound
	err := h.transact(func(tx *crdt.Txn) error {
		if h.pages.In(tx).Delete(key) {
			res = records.Applied
		}
		return nil
	})
	if err != nil {
		return records.NotFound, err
	}
	return res, nil
}

// SetPageContent replaces the body of the page at path. Only the differing middle of
// the old and new bodies is rewritten, so concurrent edits elsewhere in the page merge.
func (h *Handle) SetPageContent(path, content string) (records.Result, error) {
	page, ok := h.GetPage(path)
	if !ok {
		return records.NotFound, nil
	}
	body := h.doc.Text(pageContentName(page.ID))

	res := records.Unchanged
	err := h.transact(func(tx *crdt.Txn) error {
		v := body.In(tx)
		old := []rune(v.String())
		next := []rune(content)

		prefix := 0
		for prefix < len(old) && prefix < len(next) && old[prefix] == next[prefix] {
			prefix++
		}
		suffix := 0
		for suffix < len(old)-prefix && suffix < len(next)-prefix &&
			old[len(old)-1-suffix] == next[len(next)-1-suffix] {
			suffix++
		}
		removed := len(old) - prefix - suffix
		inserted := string(next[prefix : len(next)-suffix])
		if removed == 0 && inserted == "" {
			return nil
		}
		res = records.Applied
		if err := v.Delete(prefix, removed); err != nil {
			return err
		}
		return v.Insert(prefix, inserted)
	})
	if err != nil {
		return records.NotFound, err
	}
	return res, nil
}

// PageContent returns the body of the page at path.
func (h *Handle) PageContent(path string) (string, bool) {
	page, ok := h.GetPage(path)
	if !ok {
		return "", false
	}
	return h.doc.Text(pageContentName(page.ID)).String(), true
}

// PageText returns the live text container of a page body, for observers.
func (h *Handle) PageText(page records.WikiPage) *crdt.Text {
	return h.doc.Text(pageContentName(page.ID))
}

// RenderPage renders the body of the page at path from Markdown to HTML.
func (h *Handle) RenderPage(path string) (string, bool, error) {
	content, ok := h.PageContent(path)
	if !ok {
		return "", false, nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return "", true, fmt.Errorf("rendering page %q: %w", path, err)
	}
	return buf.String(), true, nil
}

// CreateTemplate stores a new template.
func (h *Handle) CreateTemplate(name, description, content string) (records.WikiTemplate, error) {
	tmpl := records.NewWikiTemplate(name, description, content)
	err := h.transact(func(tx *crdt.Txn) error {
		return h.templates.In(tx).Set(tmpl.ID, tmpl)
	})
	if err != nil {
		return records.WikiTemplate{}, err
	}
	return tmpl, nil
}

// GetTemplate returns the template with id.
func (h *Handle) GetTemplate(id string) (records.WikiTemplate, bool) {
	return h.templates.Get(id)
}

// ListTemplates returns every template ordered by id, which is creation order.
func (h *Handle) ListTemplates() []records.WikiTemplate {
	return nonNil(h.templates.Values())
}
