package chat

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CommandFactory builds one command instance bound to a room.
type CommandFactory func(room *Room) Command

var (
	factoryRegistry = make(map[string]CommandFactory)
	factoryMu       sync.RWMutex
)

// RegisterCommand adds a factory to the static registry, keyed by
// canonical name. Called once at startup; duplicate names are a
// programming error.
func RegisterCommand(name string, factory CommandFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, exists := factoryRegistry[name]; exists {
		panic("command factory already registered: " + name)
	}
	factoryRegistry[name] = factory
}

// instantiateCommands builds one instance per configured canonical name
// and indexes it under the name and every alias. Plugins are extracted,
// deduplicated by canonical name and sorted ascending by priority.
func instantiateCommands(room *Room, names []string) (map[string]Command, []Plugin, error) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	commands := make(map[string]Command)
	for _, name := range names {
		factory, ok := factoryRegistry[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown command/plugin %q in room config", name)
		}
		cmd := factory(room)
		commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			commands[alias] = cmd
		}
	}

	var plugins []Plugin
	for alias, cmd := range commands {
		plugin, ok := cmd.(Plugin)
		if !ok || cmd.Name() != alias {
			continue
		}
		plugins = append(plugins, plugin)
	}
	sort.SliceStable(plugins, func(i, j int) bool {
		return plugins[i].Priority() < plugins[j].Priority()
	})
	return commands, plugins, nil
}

// ParseMessage splits a raw line into its command name and parameter
// string. Content not starting with '/' is an implicit message command.
func ParseMessage(line string) (commandName, param string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "message", line
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	return strings.ToLower(name), rest
}
