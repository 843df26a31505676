package transfer

import "math"

// computeProgress implements spec.md §4.3's numeric semantics:
// progress = min(100, round(100*bytesSoFar/size)), clamped and
// monotonically non-decreasing by construction (bytesSoFar only grows).
func computeProgress(bytesSoFar, size int64) int {
	if size <= 0 {
		return 100
	}
	pct := int(math.Round(100 * float64(bytesSoFar) / float64(size)))
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

// computeInFlightProgress is computeProgress clamped to 99 so a mid-transfer
// publish (Status still transferring) never reports 100 — that value is
// reserved for the completion publish, per spec.md §3/§8's invariant
// "progress = 100 iff status = completed".
func computeInFlightProgress(bytesSoFar, size int64) int {
	pct := computeProgress(bytesSoFar, size)
	if pct > 99 {
		pct = 99
	}
	return pct
}

// computeSpeed is the cumulative wall-clock average bytes/second since
// transfer start, per spec.md §4.3/§9 (not a windowed instantaneous rate).
func computeSpeed(bytesSoFar int64, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	return float64(bytesSoFar) / elapsedSeconds
}

// computeETA returns remainingBytes/speed, or ok=false when undefined
// (speed == 0), per spec.md §4.3.
func computeETA(remainingBytes int64, speed float64) (float64, bool) {
	if speed <= 0 {
		return 0, false
	}
	return float64(remainingBytes) / speed, true
}
