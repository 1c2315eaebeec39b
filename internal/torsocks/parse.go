package torsocks

import (
	"regexp"
	"strconv"
)

// sourcePortPattern matches the connection disclosure torsocks emits at
// log level 5. The host preceding the port is not captured: it is the
// source host as torsocks saw it, not the proxy-observed peer, and only
// the port is usable for stream correlation. The first occurrence wins
// if the pattern is embedded in a longer line.
var sourcePortPattern = regexp.MustCompile(
	`Connection on fd [0-9]+ originating from [^:]+:([0-9]{1,5})`)

// ParseSourcePort extracts the ephemeral source port from a torsocks
// connection disclosure line. It returns false for lines that do not
// match and for captured ports outside 1-65535: five decimal digits can
// encode values beyond the port range, and rejecting them here keeps
// garbage out of the correlation queue.
func ParseSourcePort(line string) (int, bool) {
	m := sourcePortPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	port, err := strconv.Atoi(m[1])
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}
