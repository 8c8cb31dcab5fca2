// ABOUTME: Embedded wiki stylesheet and HTML templates served by the gateway
// ABOUTME: Renders wiki pages and the page index, and serves /static/ with cache headers

package assets

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/2389/hearth/internal/records"
)

//go:embed static templates
var assetFS embed.FS

var (
	pageTemplate  = template.Must(template.ParseFS(assetFS, "templates/base.html", "templates/wiki_page.html"))
	indexTemplate = template.Must(template.ParseFS(assetFS, "templates/base.html", "templates/wiki_index.html"))
)

// PageData is what the wiki page template renders.
type PageData struct {
	Page records.WikiPage
	Body template.HTML // markdown already rendered to HTML
}

// IndexData is what the wiki index template renders.
type IndexData struct {
	Pages []records.WikiPage
}

// RenderPage writes a full HTML document for one wiki page.
func RenderPage(w io.Writer, data PageData) error {
	return pageTemplate.ExecuteTemplate(w, "base", data)
}

// RenderIndex writes the page index.
func RenderIndex(w io.Writer, data IndexData) error {
	return indexTemplate.ExecuteTemplate(w, "base", data)
}

// mimeFromExt returns the MIME type for a file extension, falling back to the
// standard library database and then to application/octet-stream.
func mimeFromExt(ext string) string {
	switch ext {
	case ".css":
		return "text/css; charset=utf-8"
	case ".js", ".mjs":
		return "application/javascript"
	case ".svg":
		return "image/svg+xml"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// FileServer serves the embedded static/ directory. Mount it with the /static/
// prefix stripped.
func FileServer() http.Handler {
	sub, err := fs.Sub(assetFS, "static")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ext := strings.ToLower(path.Ext(r.URL.Path)); ext != "" {
			w.Header().Set("Content-Type", mimeFromExt(ext))
		}
		// embedded files change only with the binary
		w.Header().Set("Cache-Control", "public, max-age=3600")
		fileServer.ServeHTTP(w, r)
	})
}
