// ABOUTME: HTTP API handlers exposing the hosted workspace and its invocation queue
// ABOUTME: Provides health, state, documents, invocations, messages, threads and rendered wiki pages

package gateway

import (
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/2389/hearth/internal/assets"
	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/mcp"
	"github.com/2389/hearth/internal/relay"
	"github.com/2389/hearth/internal/store"
	"github.com/2389/hearth/internal/workspace"
)

// SendMessageRequest is the JSON request body for POST /api/messages.
type SendMessageRequest struct {
	Username string   `json:"username"`
	Content  string   `json:"content"`
	ThreadID string   `json:"thread_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ReadyResponse is the JSON response for GET /health/ready.
type ReadyResponse struct {
	Document string `json:"document"`
	Peers    int    `json:"peers"`
	Pending  int    `json:"pending"`
}

// DocumentResponse is one entry of GET /api/documents.
type DocumentResponse struct {
	Name    string `json:"name"`
	Updates int    `json:"updates"`
	Bytes   int64  `json:"bytes"`
	LastSeq int64  `json:"last_seq"`
}

// routes builds the gateway's HTTP handler.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	mux.Handle("GET /sync/{doc}", relay.NewServer(g.hub, relay.DefaultSettings(), g.logger))

	mux.HandleFunc("GET /api/state", g.handleState)
	mux.HandleFunc("GET /api/documents", g.handleDocuments)
	mux.HandleFunc("GET /api/invocations", g.handleInvocations)
	mux.HandleFunc("POST /api/messages", g.handleSendMessage)
	mux.HandleFunc("GET /api/threads/{id}", g.handleThread)
	mux.HandleFunc("GET /wiki", g.handleWikiIndex)
	mux.HandleFunc("GET /wiki/{path...}", g.handleWikiPage)
	mux.Handle("GET /static/", http.StripPrefix("/static/", assets.FileServer()))

	if g.mcp != nil {
		g.mcp.RegisterRoutes(mux)
	}
	if g.metrics != nil {
		mux.Handle("GET "+g.config.Metrics.Path, g.metrics.Handler())
	}
	return mux
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports the hosted document, its peer count and pending invocations.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, ReadyResponse{
		Document: g.config.Document.Name,
		Peers:    g.hub.Peers(g.config.Document.Name),
		Pending:  len(g.queue.Pending()),
	})
}

// handleState returns a full snapshot of the hosted workspace.
func (g *Gateway) handleState(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, g.handle.State())
}

// handleDocuments lists every stored document with its log statistics.
func (g *Gateway) handleDocuments(w http.ResponseWriter, r *http.Request) {
	names, err := g.store.ListDocuments(r.Context())
	if err != nil {
		g.logger.Error("failed to list documents", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]DocumentResponse, 0, len(names))
	for _, name := range names {
		stats, err := g.store.DocumentStats(r.Context(), name)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			g.logger.Error("failed to read document stats", "document", name, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		out = append(out, DocumentResponse{
			Name:    name,
			Updates: stats.Updates,
			Bytes:   stats.Bytes,
			LastSeq: stats.LastSeq,
		})
	}
	g.writeJSON(w, http.StatusOK, out)
}

// handleInvocations lists invocations, optionally filtered by ?status=a,b.
func (g *Gateway) handleInvocations(w http.ResponseWriter, r *http.Request) {
	var statuses []botqueue.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := botqueue.Status(strings.TrimSpace(s))
			switch status {
			case botqueue.StatusPending, botqueue.StatusProcessing, botqueue.StatusCompleted, botqueue.StatusFailed:
				statuses = append(statuses, status)
			default:
				g.sendJSONError(w, http.StatusBadRequest, "unknown status "+string(status))
				return
			}
		}
	}
	g.writeJSON(w, http.StatusOK, g.queue.List(statuses...))
}

// handleSendMessage posts a message to the hosted workspace.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	req, err := parseSendRequest(http.MaxBytesReader(w, r.Body, mcp.MaxRequestBodySize))
	if errors.Is(err, errBodyTooLarge) {
		g.sendJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := g.handle.SendMessage(req.Username, req.Content, workspace.SendOptions{
		ThreadID: req.ThreadID,
		Tags:     req.Tags,
	})
	if errors.Is(err, workspace.ErrEmptyMessage) {
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}
	if err != nil {
		g.logger.Error("failed to send message", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusCreated, res)
}

// handleThread returns a thread with its messages.
func (g *Gateway) handleThread(w http.ResponseWriter, r *http.Request) {
	thread := g.handle.GetThreadWithMessages(r.PathValue("id"))
	if thread == nil {
		g.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}
	g.writeJSON(w, http.StatusOK, thread)
}

// handleWikiPage renders a wiki page body as an HTML document.
func (g *Gateway) handleWikiPage(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if path == "" {
		g.handleWikiIndex(w, r)
		return
	}
	page, ok := g.handle.GetPage(path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	body, _, err := g.handle.RenderPage(path)
	if err != nil {
		g.logger.Error("failed to render page", "path", path, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// goldmark's default renderer omits raw HTML from page bodies
	if err := assets.RenderPage(w, assets.PageData{Page: page, Body: template.HTML(body)}); err != nil {
		g.logger.Warn("failed to write page", "path", path, "error", err)
	}
}

// handleWikiIndex lists every wiki page.
func (g *Gateway) handleWikiIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := assets.RenderIndex(w, assets.IndexData{Pages: g.handle.ListPages()}); err != nil {
		g.logger.Warn("failed to write page index", "error", err)
	}
}

// writeJSON writes v as a JSON response with status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}

// parseSendRequest parses and validates a SendMessageRequest from the given reader.
var errBodyTooLarge = errors.New("request body too large")

func parseSendRequest(r io.Reader) (*SendMessageRequest, error) {
	var req SendMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, errors.New("invalid JSON body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, errors.New("content is required")
	}
	if req.Username == "" {
		return nil, errors.New("username is required")
	}
	return &req, nil
}
