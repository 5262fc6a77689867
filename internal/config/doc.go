// Package config loads, validates, and normalizes drover's TOML
// configuration.
//
// Load follows a fixed resolution order (explicit path, then the user config
// directory, then a project-local drover.toml), merges the file over built-in
// defaults, expands home-relative paths, and rejects configurations that
// cannot work (bad mode names, silence timeout shorter than the dwell floor,
// missing payload path). Timing values are stored as integer seconds in TOML
// and exposed as time.Duration accessors so callers never repeat the
// conversion.
package config
