// Package protocol implements the JSON-RPC-over-WebSocket link used to
// drive a debuggable webview target. A Link wraps one connection and
// correlates Runtime.evaluate requests with their responses by numeric
// id; unsolicited protocol events are ignored.
package protocol
