// Package mcp exposes workspace operations to external agents over the Model
// Context Protocol.
//
// # Protocol
//
// JSON-RPC 2.0 over the Streamable HTTP transport (2025-11-25). One endpoint:
//
//   - POST /mcp - initialize, tools/list, tools/call and notifications
//   - DELETE /mcp - end a session (Mcp-Session-Id header)
//
// initialize returns an Mcp-Session-Id header that every later request carries.
// Server-initiated SSE streams are not offered.
//
// # Authentication
//
// When the TokenStore holds tokens, initialize must present one as /mcp/<token>,
// ?token=<token> or an Authorization bearer header. The token's username becomes
// the author of every message the session sends. With no tokens configured,
// sessions are anonymous and send_message takes a username argument.
//
// # Tools
//
//   - send_message, query_messages
//   - create_thread, get_thread
//   - add_tag, remove_tag
//   - get_state
//   - create_page, get_page, set_page_content
//   - list_invocations
//
// Failures inside a tool (unknown message, missing page) come back as a result
// with isError set. Unknown tools and malformed arguments are JSON-RPC errors.
//
// # Client configuration
//
//	{
//	  "mcpServers": {
//	    "hearth": {
//	      "url": "http://localhost:8080/mcp",
//	      "authorization": "Bearer <token>"
//	    }
//	  }
//	}
package mcp
