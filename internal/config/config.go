// Package config loads layoutdb settings from CUE files validated against
// an embedded schema.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/format"
)

//go:embed schema.cue
var schemaSource string

// Config is the decoded configuration.
type Config struct {
	Workers        int    `json:"workers"`
	Shards         int    `json:"shards"`
	MaxDepth       int    `json:"max_depth"`
	OverlapCheck   bool   `json:"overlap_check"`
	LogLevel       string `json:"log_level"`
	TraceExporter  string `json:"trace_exporter"`
	MetricExporter string `json:"metric_exporter"`
	HistoryDB      string `json:"history_db"`
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Parse("defaults.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema is invalid: %v", err))
	}
	return cfg
}

// Load reads and validates the CUE file at path.
func Load(path string) (Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// Parse validates src against the schema and decodes it. filename is used
// in error positions only.
func Parse(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Config{}, fmt.Errorf("parse %s: %s", filename, cueerrors.Details(err, nil))
	}

	merged := def.Unify(user)
	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %s", filename, cueerrors.Details(err, nil))
	}

	var cfg Config
	if err := merged.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Format renders cfg as CUE source.
func Format(cfg Config) (string, error) {
	v := cuecontext.New().Encode(cfg)
	if err := v.Err(); err != nil {
		return "", err
	}
	b, err := format.Node(v.Syntax())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SlogLevel maps LogLevel to a slog level. Unknown names map to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
