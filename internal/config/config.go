// Package config loads the small set of tunables this spec names: the ICE
// server list, the connection timeout, and the fixed chunk size.
package config

import (
	"os"
	"strconv"
	"time"
)

// Default ICE configuration per SPEC_FULL.md §4.2. No TURN servers: the
// Non-goals in spec.md rule out relay fallback beyond what the peer library
// provides on its own.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun.cloudflare.com:3478",
	"stun:global.stun.twilio.com:3478",
}

const (
	// ChunkSize is fixed per spec.md §4.3; unlike the teacher's adaptive
	// chunk sizing, this spec does not redesign the wire chunk size.
	ChunkSize = 65536

	// HighWaterMark is the outbound buffered-bytes threshold above which
	// the send loop pauses to let the data channel drain.
	HighWaterMark = 1048576

	// ProgressThrottle bounds how often progress/speed/eta are recomputed
	// and published while a transfer is in flight.
	ProgressThrottle = 80 * time.Millisecond

	// InterFilePause is the pause between the send loop completing one
	// file and starting the next.
	InterFilePause = 200 * time.Millisecond

	// BackpressurePoll is the sleep interval while waiting for the data
	// channel's buffered amount to drain below HighWaterMark.
	BackpressurePoll = 20 * time.Millisecond

	// ConnectionTimeout bounds how long the controller waits between
	// entering "connecting" and observing "connected" before failing.
	ConnectionTimeout = 180 * time.Second
)

// Options allows CLI flags or environment variables to override defaults.
type Options struct {
	STUNServers []string
}

// Config holds the resolved ICE/transport configuration for a session. No
// TURN fields: spec.md §6 is explicit ("No TURN") and §1's Non-goals rule
// out relay fallback beyond what the peer library provides on its own.
type Config struct {
	STUNServers []string
}

// Load resolves configuration with priority CLI flag > environment > default,
// following the teacher's config.Load layering.
func Load(opts Options) *Config {
	stun := opts.STUNServers
	if len(stun) == 0 {
		if env := os.Getenv("DROPWIRE_STUN_SERVERS"); env != "" {
			stun = splitCSV(env)
		}
	}
	if len(stun) == 0 {
		stun = DefaultSTUNServers
	}

	return &Config{
		STUNServers: stun,
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// ConnectionTimeoutFromEnv lets tests shrink ConnectionTimeout without
// touching the package constant used by production defaults.
func ConnectionTimeoutFromEnv(def time.Duration) time.Duration {
	if v := os.Getenv("DROPWIRE_CONNECTION_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
