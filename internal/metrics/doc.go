// Package metrics exposes hearth's Prometheus collectors.
//
// Metrics owns a private registry so tests and multiple gateways in one
// process never collide on the global default registry. It satisfies
// botqueue.Recorder and relay.Metrics directly, and counts committed frames
// of any document passed to ObserveDocument.
//
// Exported series:
//
//	hearth_transactions_total                  committed document frames
//	hearth_invocations{status}                 invocations held, by status
//	hearth_invocation_transitions_total{status}
//	hearth_relay_peers{document}
//	hearth_updates_persisted_total{document}
//
// Go runtime and process collectors are registered alongside.
package metrics
