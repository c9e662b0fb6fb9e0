package tui

import "strings"

// Command represents a parsed ":" command.
type Command struct {
	Name string
	Args string
}

// Commands lists the full command names offered for completion.
var Commands = []string{"calls", "chat", "chats", "help", "quit", "refresh"}

var commandAliases = map[string]string{
	"q":    "quit",
	"exit": "quit",
	"h":    "help",
	"c":    "calls",
	"o":    "chat",
	"open": "chat",
	"r":    "refresh",
}

// ParseCommand parses a command string (with or without the leading ':').
// Names are lowercased and aliases resolved.
func ParseCommand(input string) Command {
	input = strings.TrimPrefix(strings.TrimSpace(input), ":")
	parts := strings.SplitN(strings.TrimSpace(input), " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if full, ok := commandAliases[cmd.Name]; ok {
		cmd.Name = full
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}
