package adapter

import (
	"regexp"
	"strings"
)

var commandPattern = regexp.MustCompile(`^\*\s*([^:]+):\s*(.+)$`)

// protocolCommand is one parsed "* key: value" line.
type protocolCommand struct {
	Key   string
	Value string
}

// parseProtocolCommand reports whether line is a protocol command and, if
// so, its lowercased key and raw value.
func parseProtocolCommand(line string) (protocolCommand, bool) {
	m := commandPattern.FindStringSubmatch(line)
	if m == nil {
		return protocolCommand{}, false
	}
	return protocolCommand{Key: strings.ToLower(strings.TrimSpace(m[1])), Value: m[2]}, true
}

func isTrue(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v == "yes" || v == "true"
}

const pingLine = "* PING\n"

func isPong(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), "* PONG")
}
