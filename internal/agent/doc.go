// Package agent answers bot invocations queued by the workspace.
//
// # Overview
//
// A message that mentions a configured bot enqueues an invocation (see package
// botqueue). The Worker drains that queue: it claims an invocation, makes sure the
// reply thread exists, asks the bot's Responder for a reply, and posts the reply as
// the bot in that thread.
//
//	reg := agent.NewRegistry(logger)
//	reg.Register("ai", agent.EchoResponder{})
//	w, err := agent.NewWorker(handle, reg, agent.Options{Concurrency: 4})
//	go w.Run(ctx)
//
// # Thread Allocation
//
// When the trigger was not posted in a thread, the worker allocates the reply
// thread id before claiming, so the id is recorded on the invocation from the moment
// it turns processing. A reclaimed invocation keeps its id and the thread is created
// idempotently, so a retry never opens a second thread.
//
// # Remote Mentions
//
// Messages that arrive from other replicas never pass through the local SendMessage,
// so their mentions are not enqueued there. MentionWatcher observes remote frames of
// the messages array and enqueues them instead. Each message and bot pair is acted on
// once, and messages older than a configurable age are ignored so that joining a room
// does not replay history.
//
// # Rate Limiting
//
// Responder calls share one token bucket across the worker pool
// (golang.org/x/time/rate). Replies are posted with mentions disabled, so a bot can
// never trigger itself or another bot.
package agent
