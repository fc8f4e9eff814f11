package logic

import "strings"

// CommandChannel turns polled command strings into actuator requests.
// It is edge-triggered: a command identical to the last one applied is
// ignored, so the same value fetched on successive polls acts only once.
type CommandChannel struct {
	lastApplied string
}

// NormalizeCommand trims whitespace and strips one wrapping pair of quotes.
func NormalizeCommand(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// Apply normalizes raw and returns the request it maps to, if any.
// Unknown commands still become the last applied command.
func (c *CommandChannel) Apply(raw string) (ActuatorRequest, bool) {
	cmd := NormalizeCommand(raw)
	if cmd == c.lastApplied {
		return ActuatorRequest{}, false
	}
	c.lastApplied = cmd

	switch {
	case strings.EqualFold(cmd, string(ChannelOpen)):
		return ActuatorRequest{Channel: ChannelOpen}, true
	case strings.EqualFold(cmd, string(ChannelClose)):
		return ActuatorRequest{Channel: ChannelClose}, true
	}
	return ActuatorRequest{}, false
}

// LastApplied returns the last normalized command seen.
func (c *CommandChannel) LastApplied() string {
	return c.lastApplied
}
