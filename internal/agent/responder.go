// ABOUTME: Responder produces a bot's reply to one invocation
// ABOUTME: Includes ResponderFunc and the EchoResponder used by the demo bot

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/hearth/internal/botqueue"
)

// Responder answers an invocation. The returned text is posted as the bot's reply.
type Responder interface {
	Respond(ctx context.Context, inv *botqueue.Invocation) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, inv *botqueue.Invocation) (string, error)

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, inv *botqueue.Invocation) (string, error) {
	return f(ctx, inv)
}

// EchoResponder replies with the prompt it was given.
type EchoResponder struct {
	Prefix string // defaults to "echo: "
}

// Respond echoes the prompt and how much context came with it.
func (e EchoResponder) Respond(ctx context.Context, inv *botqueue.Invocation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prefix := e.Prefix
	if prefix == "" {
		prefix = "echo: "
	}
	prompt := strings.TrimSpace(inv.Prompt)
	if prompt == "" {
		prompt = "(nothing to echo)"
	}
	return fmt.Sprintf("%s%s [%d context messages]", prefix, prompt, len(inv.ContextMessages)), nil
}
