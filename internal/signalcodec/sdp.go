package signalcodec

import "strings"

// droppedPrefixes lists the SDP line prefixes stripped during minification.
// a=msid-semantic: is retained even though it shares a prefix with a=msid:
// (note the trailing colon on the dropped form).
var droppedPrefixes = []string{
	"a=rtpmap",
	"a=fmtp",
	"a=rtcp-fb",
	"a=ssrc",
	"a=extmap",
	"a=msid:",
}

// minifySDP normalizes line endings, drops media-section junk the peer
// library never needs for data-channel-only negotiation, and rejoins with
// CRLF plus a trailing CRLF.
func minifySDP(sdp string) string {
	normalized := strings.ReplaceAll(sdp, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isDropped(line) {
			continue
		}
		kept = append(kept, line)
	}

	return strings.Join(kept, "\r\n") + "\r\n"
}

func isDropped(line string) bool {
	for _, prefix := range droppedPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// restoreCRLF ensures every line of a decoded SDP ends with CRLF and that
// the whole blob ends with CRLF, tolerating blobs that round-tripped through
// a transport that collapsed CRLF to bare LF.
func restoreCRLF(sdp string) string {
	normalized := strings.ReplaceAll(sdp, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\n", "\r\n")
	if !strings.HasSuffix(normalized, "\r\n") {
		normalized += "\r\n"
	}
	return normalized
}
