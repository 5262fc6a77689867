// Package daemon wires drover's components together and runs them:
// store, connection pool, activity monitor, scheduler, quota gate,
// lease coordinator, the periodic loops that drive them, the HTTP
// control API, and config hot-reload. A flock file keeps two daemons
// from sharing one data directory; the sqlite lease arbitrates the
// shared target across machines.
package daemon
