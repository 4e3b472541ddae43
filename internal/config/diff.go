package config

import "reflect"

// ConfigDiff describes what changed between two configs.
//
// Log level, agent tuning and the prompt file are applied in place. Every other section is
// read once at startup; RestartRequired names the sections whose change only
// takes effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	AgentTuningChanged bool
	NewWindow          int
	NewTemperature     float64

	PromptFileChanged bool
	NewPromptFile     string

	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AgentTuningChanged && !d.PromptFileChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Agent.Window != new.Agent.Window || old.Agent.Temperature != new.Agent.Temperature {
		d.AgentTuningChanged = true
		d.NewWindow = new.Agent.Window
		d.NewTemperature = new.Agent.Temperature
	}

	if old.Agent.PromptFile != new.Agent.PromptFile {
		d.PromptFileChanged = true
		d.NewPromptFile = new.Agent.PromptFile
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	oldAgent, newAgent := old.Agent, new.Agent
	oldAgent.Window, newAgent.Window = 0, 0
	oldAgent.Temperature, newAgent.Temperature = 0, 0
	oldAgent.PromptFile, newAgent.PromptFile = "", ""

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"providers", old.Providers, new.Providers},
		{"agent", oldAgent, newAgent},
		{"session", old.Session, new.Session},
		{"tools", old.Tools, new.Tools},
		{"audio", old.Audio, new.Audio},
		{"playback", old.Playback, new.Playback},
		{"mcp", old.MCP, new.MCP},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
