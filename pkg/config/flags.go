package config

import (
	"flag"
	"time"
)

// FlagSet declares the command-line overrides. Only flags given on the command line are applied.
type FlagSet struct {
	*flag.FlagSet
	ConfigPath string

	values  Config
	setters map[string]func(*Config)
}

func NewFlagSet(name string, handling flag.ErrorHandling) *FlagSet {
	f := &FlagSet{FlagSet: flag.NewFlagSet(name, handling), setters: map[string]func(*Config){}}
	d := Default()

	f.StringVar(&f.ConfigPath, "config", "", "Path of an optional YAML config file")
	f.str("provider", d.Provider, "Model provider (openai, anthropic)", &f.values.Provider, func(c *Config) { c.Provider = f.values.Provider })
	f.str("model", "", "Technical name of the LLM (default depends on the provider)", &f.values.Model, func(c *Config) { c.Model = f.values.Model })
	f.str("api", "", "Base URL of the model API endpoint", &f.values.APIURL, func(c *Config) { c.APIURL = f.values.APIURL })
	f.str("db", d.DBPath, "Path of the SQLite pharmacy database", &f.values.DBPath, func(c *Config) { c.DBPath = f.values.DBPath })
	f.str("log-level", d.LogLevel, "Log level (debug, info, warn, error, critical)", &f.values.LogLevel, func(c *Config) { c.LogLevel = f.values.LogLevel })
	f.str("addr", d.HTTPAddr, "Listen address of the HTTP server", &f.values.HTTPAddr, func(c *Config) { c.HTTPAddr = f.values.HTTPAddr })
	f.str("session-file", "", "Use this file to save and resume chat sessions", &f.values.SessionFile, func(c *Config) { c.SessionFile = f.values.SessionFile })

	f.IntVar(&f.values.MaxRounds, "max-rounds", d.MaxRounds, "Maximum tool rounds per turn")
	f.setters["max-rounds"] = func(c *Config) { c.MaxRounds = f.values.MaxRounds }
	f.Int64Var(&f.values.MaxOutputTokens, "max-output-tokens", d.MaxOutputTokens, "Maximum output tokens per model call")
	f.setters["max-output-tokens"] = func(c *Config) { c.MaxOutputTokens = f.values.MaxOutputTokens }
	f.dur("model-timeout", d.ModelTimeout, "Timeout of a single model call", &f.values.ModelTimeout, func(c *Config) { c.ModelTimeout = f.values.ModelTimeout })
	f.dur("turn-timeout", d.TurnTimeout, "Time budget of a whole turn", &f.values.TurnTimeout, func(c *Config) { c.TurnTimeout = f.values.TurnTimeout })
	f.BoolVar(&f.values.DebugHTTP, "log-http", false, "Log the HTTP traffic of the model SDK")
	f.setters["log-http"] = func(c *Config) { c.DebugHTTP = f.values.DebugHTTP }

	return f
}

func (f *FlagSet) str(name, value, usage string, p *string, set func(*Config)) {
	f.StringVar(p, name, value, usage)
	f.setters[name] = set
}

func (f *FlagSet) dur(name string, value time.Duration, usage string, p *time.Duration, set func(*Config)) {
	f.DurationVar(p, name, value, usage)
	f.setters[name] = set
}

// Apply copies every flag that was set on the command line into c.
func (f *FlagSet) Apply(c *Config) {
	f.Visit(func(fl *flag.Flag) {
		if set, ok := f.setters[fl.Name]; ok {
			set(c)
		}
	})
}
