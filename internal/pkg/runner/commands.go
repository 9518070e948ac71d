package runner

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/impet14/inverter-automator/internal/pkg/dessmon"
)

// Command names one inverter operation the runner knows how to execute
type Command string

const (
	CommandReadStatus Command = "read-status"
	CommandSetSolar   Command = "set-solar"
	CommandSetSBU     Command = "set-sbu"
)

// commandSpec maps a command onto its API operation
type commandSpec struct {
	description string
	mutating    bool
	priority    dessmon.OutputPriority // mutating commands only
}

var commandSpecs = map[Command]commandSpec{
	CommandReadStatus: {
		description: "Read current output priority",
	},
	CommandSetSolar: {
		description: "Set output priority to SOLAR",
		mutating:    true,
		priority:    dessmon.PrioritySolar,
	},
	CommandSetSBU: {
		description: "Set output priority to SBU",
		mutating:    true,
		priority:    dessmon.PrioritySBU,
	},
}

// ParseCommand validates a command name supplied on the command line
func ParseCommand(name string) (Command, error) {
	c := Command(name)
	if _, ok := commandSpecs[c]; !ok {
		return "", errors.Errorf("unknown command %q, expected one of: %s", name, strings.Join(CommandNames(), ", "))
	}

	return c, nil
}

// CommandNames returns the valid command names in a stable order
func CommandNames() []string {
	names := make([]string, 0, len(commandSpecs))
	for c := range commandSpecs {
		names = append(names, string(c))
	}
	sort.Strings(names)

	return names
}

// Mutating reports whether the command changes device state
func (c Command) Mutating() bool {
	return commandSpecs[c].mutating
}

// Description returns the human readable job description
func (c Command) Description() string {
	return commandSpecs[c].description
}
