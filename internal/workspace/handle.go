// ABOUTME: Handle wraps one replicated document and exposes the workspace's typed containers
// ABOUTME: Constructed explicitly per connection and torn down with Close; there is no default instance

package workspace

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/records"
)

// Container names.
const (
	MessagesContainer   = "messages"
	ThreadsContainer    = "threads"
	TagsContainer       = "tags"
	PagesContainer      = "wiki-pages"
	TemplatesContainer  = "wiki-templates"
	HighlightsContainer = "highlights"
	pageContentPrefix   = "wiki-content:"
)

// DefaultContextMessages is how many prior messages a bot invocation carries when
// Options.ContextMessages is zero.
const DefaultContextMessages = 20

var (
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("workspace handle is closed")

	// ErrEmptyMessage is returned when message content is blank after trimming.
	ErrEmptyMessage = errors.New("message content is empty")
)

// Bot is a mentionable agent.
type Bot struct {
	Name        string // mention name, matched case-insensitively
	DisplayName string // username the bot posts replies as
}

// Username returns the name replies are posted under.
func (b Bot) Username() string {
	if b.DisplayName != "" {
		return b.DisplayName
	}
	return b.Name
}

// Options configures a Handle.
type Options struct {
	Queue           *botqueue.Queue // nil disables mention handling
	Bots            []Bot
	ContextMessages int
	Logger          *slog.Logger
}

// Handle is the document-backed workspace.
type Handle struct {
	doc        *crdt.Doc
	messages   *crdt.TypedArray[records.Message]
	threads    *crdt.TypedArray[records.Thread]
	tags       *crdt.TypedArray[string]
	pages      *crdt.TypedMap[records.WikiPage]
	templates  *crdt.TypedMap[records.WikiTemplate]
	highlights *crdt.TypedMap[records.Highlight]

	queue           *botqueue.Queue
	bots            map[string]Bot
	contextMessages int
	logger          *slog.Logger
	closed          atomic.Bool
}

// New binds a handle to doc.
func New(doc *crdt.Doc, opts Options) *Handle {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := opts.ContextMessages
	if n <= 0 {
		n = DefaultContextMessages
	}
	bots := make(map[string]Bot, len(opts.Bots))
	for _, b := range opts.Bots {
		bots[strings.ToLower(b.Name)] = b
	}
	return &Handle{
		doc:             doc,
		messages:        crdt.ArrayOf[records.Message](doc, MessagesContainer),
		threads:         crdt.ArrayOf[records.Thread](doc, ThreadsContainer),
		tags:            crdt.ArrayOf[string](doc, TagsContainer),
		pages:           crdt.MapOf[records.WikiPage](doc, PagesContainer),
		templates:       crdt.MapOf[records.WikiTemplate](doc, TemplatesContainer),
		highlights:      crdt.MapOf[records.Highlight](doc, HighlightsContainer),
		queue:           opts.Queue,
		bots:            bots,
		contextMessages: n,
		logger:          logger.With("component", "workspace"),
	}
}

// Doc returns the underlying document.
func (h *Handle) Doc() *crdt.Doc {
	return h.doc
}

// Queue returns the invocation queue, or nil.
func (h *Handle) Queue() *botqueue.Queue {
	return h.queue
}

// Bot returns the configured bot with mention name.
func (h *Handle) Bot(name string) (Bot, bool) {
	b, ok := h.bots[strings.ToLower(name)]
	return b, ok
}

// Bots returns the configured bots sorted by name.
func (h *Handle) Bots() []Bot {
	out := make([]Bot, 0, len(h.bots))
	for _, b := range h.bots {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b Bot) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// IsBotUser reports whether username belongs to a configured bot.
func (h *Handle) IsBotUser(username string) bool {
	for _, b := range h.bots {
		if b.Username() == username {
			return true
		}
	}
	return false
}

// Close detaches the handle. Later operations return ErrClosed; the document itself is
// owned by whoever supplied it.
func (h *Handle) Close() {
	h.closed.Store(true)
}

func (h *Handle) transact(fn func(tx *crdt.Txn) error) error {
	if h.closed.Load() {
		return ErrClosed
	}
	return h.doc.Transact(fn)
}

// Snapshot is the full workspace state.
type Snapshot struct {
	Messages   []records.Message      `json:"messages"`
	Threads    []records.Thread       `json:"threads"`
	Tags       []string               `json:"tags"`
	Pages      []records.WikiPage     `json:"pages"`
	Templates  []records.WikiTemplate `json:"templates"`
	Highlights []records.Highlight    `json:"highlights"`
}

// State reads every container in one consistent frame.
func (h *Handle) State() Snapshot {
	var s Snapshot
	h.doc.View(func(tx *crdt.Txn) {
		s = Snapshot{
			Messages:   nonNil(h.messages.In(tx).ToArray()),
			Threads:    nonNil(h.threads.In(tx).ToArray()),
			Tags:       nonNil(h.tags.In(tx).ToArray()),
			Pages:      nonNil(h.pages.In(tx).Values()),
			Templates:  nonNil(h.templates.In(tx).Values()),
			Highlights: nonNil(h.highlights.In(tx).Values()),
		}
	})
	return s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
