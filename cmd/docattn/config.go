package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/docattn/go-docattn/multidoc"
	"github.com/docattn/go-docattn/tokenizers/api"
	"github.com/docattn/go-docattn/tokenizers/sentencepiece"
	"github.com/docattn/go-docattn/tokenizers/wordlevel"
)

// fileConfig is the TOML configuration of the encode command.
type fileConfig struct {
	TokenizerPath    string `toml:"tokenizer_path"`
	GlobalMaxLen     int    `toml:"global_max_len"`
	MaxTargetLen     int    `toml:"max_target_len"`
	PerPassageLimit  bool   `toml:"per_passage_limit"`
	PadToMaxLength   bool   `toml:"pad_to_max_length"`
	IgnorePadInLoss  bool   `toml:"ignore_pad_in_loss"`
	PassageDelimiter string `toml:"passage_delimiter"`
	Workers          int    `toml:"workers"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		GlobalMaxLen:    4096,
		MaxTargetLen:    1024,
		PerPassageLimit: true,
		IgnorePadInLoss: true,
		Workers:         runtime.GOMAXPROCS(0),
	}
}

func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, errors.New("a configuration file is required (--config)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read configuration %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse configuration %s", path)
	}
	if cfg.TokenizerPath == "" {
		return cfg, errors.Errorf("configuration %s sets no tokenizer_path", path)
	}
	return cfg, nil
}

func (c fileConfig) encoderConfig() multidoc.Config {
	return multidoc.Config{
		GlobalMaxLen:     c.GlobalMaxLen,
		MaxTargetLen:     c.MaxTargetLen,
		PerPassageLimit:  c.PerPassageLimit,
		PadToMaxLength:   c.PadToMaxLength,
		IgnorePadInLoss:  c.IgnorePadInLoss,
		PassageDelimiter: c.PassageDelimiter,
	}
}

// openTokenizer picks the tokenizer implementation from the file extension:
// SentencePiece model protos end in ".model", word-level vocabularies in ".json".
func openTokenizer(path string) (api.Tokenizer, error) {
	switch filepath.Ext(path) {
	case ".model":
		return sentencepiece.NewFromPath(path)
	case ".json":
		return wordlevel.NewFromFile(path)
	default:
		return nil, errors.Errorf("cannot infer tokenizer type from %s: want a .model or .json file", path)
	}
}
