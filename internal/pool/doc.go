// Package pool maintains the set of live debugger connections to
// eligible webview targets. It discovers targets through the fixed
// /json/list endpoint, injects the automation payload into each one,
// and delivers prompts to the single best-ranked input surface.
//
// The pool never scans ports: attaching to an arbitrary debuggable
// process on a nearby port is worse than finding nothing.
package pool
