package multidoc

import (
	"github.com/pkg/errors"
)

const (
	// BoundaryPad is the sentinel used to right-pad ragged boundary-offset
	// lists into a rectangular matrix. It is never a valid token position.
	BoundaryPad = -1

	// LabelIgnore is the sentinel that marks label positions excluded from the
	// loss. It is never a valid vocabulary id.
	LabelIgnore = -100

	// DefaultPassageDelimiter separates passages inside one raw source string.
	DefaultPassageDelimiter = " <REVBREAK> "
)

// Config holds the document-encoding options. Construct it once and pass it to
// NewEncoder, which validates it; invalid combinations are rejected up front
// rather than checked at each use site.
type Config struct {
	// GlobalMaxLen is the hard cap on the flattened source sequence length,
	// including the per-passage start markers and the terminal marker.
	GlobalMaxLen int

	// MaxTargetLen is the hard cap on the encoded target sequence length.
	MaxTargetLen int

	// PerPassageLimit switches the length budget to the passage level: each
	// passage is capped at (GlobalMaxLen - passageCount) / passageCount
	// content tokens, reserving one token per passage for its start marker.
	PerPassageLimit bool

	// PadToMaxLength pads every example to GlobalMaxLen/MaxTargetLen instead
	// of padding dynamically to the batch maximum.
	PadToMaxLength bool

	// IgnorePadInLoss replaces pad ids in labels with LabelIgnore so padding
	// does not contribute to the loss.
	IgnorePadInLoss bool

	// PassageDelimiter splits a raw source string into passages. Defaults to
	// DefaultPassageDelimiter when empty.
	PassageDelimiter string
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.GlobalMaxLen < 2 {
		return errors.Errorf("GlobalMaxLen must be at least 2 (one content token plus the terminal marker), got %d", c.GlobalMaxLen)
	}
	if c.MaxTargetLen < 2 {
		return errors.Errorf("MaxTargetLen must be at least 2, got %d", c.MaxTargetLen)
	}
	if c.PassageDelimiter == "" {
		c.PassageDelimiter = DefaultPassageDelimiter
	}
	return nil
}
