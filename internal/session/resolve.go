package session

import "github.com/matheus3301/crmsync/internal/config"

// DefaultName is used when neither the flag nor config.toml names a session.
const DefaultName = "main"

// Resolve picks the session for a binary: the --session flag, then
// default_session from config.toml, then DefaultName. An unreadable config
// falls through to the default; an invalid name is an error.
func Resolve(flag string) (string, error) {
	name := flag
	if name == "" {
		if cfg, err := config.Load(ConfigPath()); err == nil {
			name = cfg.DefaultSession
		}
	}
	if name == "" {
		name = DefaultName
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}
