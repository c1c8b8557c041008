package models

import "strings"

// CommandType enumerates supported report command categories.
type CommandType string

const (
	CommandSummary    CommandType = "summary"
	CommandProduction CommandType = "production"
	CommandEstimate   CommandType = "estimate"
	CommandHelp       CommandType = "help"
	CommandUnknown    CommandType = "unknown"
)

// Command represents a parsed report request extracted from WhatsApp text,
// e.g. "/summary 30d lot-7".
type Command struct {
	Type   CommandType
	Raw    string
	Period string
	LotID  string
	Args   []string
}

var namedPeriods = map[string]bool{"7d": true, "30d": true, "90d": true, "365d": true, "all": true}

// ParseCommand derives a Command instance from free-form text messages.
func ParseCommand(message string) Command {
	normalized := strings.TrimSpace(strings.ToLower(message))
	cmd := Command{Raw: message, Type: CommandUnknown}

	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return cmd
	}

	switch head := strings.TrimPrefix(tokens[0], "/"); head {
	case string(CommandSummary), "resume", "bilan":
		cmd.Type = CommandSummary
	case string(CommandProduction), "prod":
		cmd.Type = CommandProduction
	case string(CommandEstimate), "estimation":
		cmd.Type = CommandEstimate
	case string(CommandHelp), "aide":
		cmd.Type = CommandHelp
	}

	if len(tokens) > 1 {
		cmd.Args = tokens[1:]
	}

	// Lot ids keep their original casing, so read them from the raw fields.
	rawTokens := strings.Fields(strings.TrimSpace(message))
	for i, token := range cmd.Args {
		if namedPeriods[token] && cmd.Period == "" {
			cmd.Period = token
			continue
		}
		if cmd.LotID == "" {
			cmd.LotID = rawTokens[i+1]
		}
	}

	return cmd
}
