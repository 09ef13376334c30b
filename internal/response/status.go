package response

import "net/http"

// Status codes the engine emits that net/http does not name.
const (
	StatusBandwidthLimitExceeded = 509
	StatusOriginUnreachable      = 523
)

var extraStatusText = map[int]string{
	StatusBandwidthLimitExceeded: "Bandwidth Limit Exceeded",
	StatusOriginUnreachable:      "Origin Is Unreachable",
}

// StatusText returns the reason phrase for code. Unknown codes get "Unknown".
func StatusText(code int) string {
	if s, ok := extraStatusText[code]; ok {
		return s
	}
	if s := http.StatusText(code); s != "" {
		return s
	}
	return "Unknown"
}
