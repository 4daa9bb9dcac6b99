// Package sentencepiece implements an api.Tokenizer backed by the
// SentencePiece tokenizer.
package sentencepiece

import (
	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/pkg/errors"

	"github.com/docattn/go-docattn/tokenizers/api"
)

// Tokenizer implements api.Tokenizer based on Google's SentencePiece.
type Tokenizer struct {
	proc *esentencepiece.Processor
	info *esentencepiece.ModelInfo
}

// Compile time assert that Tokenizer implements the api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// NewFromPath creates a SentencePiece tokenizer from a local "tokenizer.model"
// file, which must be a SentencePiece Model proto.
func NewFromPath(modelPath string) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", modelPath)
	}
	return &Tokenizer{
		proc: proc,
		info: proc.ModelInfo(),
	}, nil
}

// Encode returns the text encoded into a sequence of ids.
// SentencePiece does not add beginning/end-of-sentence markers itself, so the
// result is the bare piece ids.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.proc.Encode(text)
	ids := make([]int, len(tokens))
	for i, t := range tokens {
		ids[i] = t.ID
	}
	return ids
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.proc.Decode(ids)
}

// SpecialTokenID returns the id for the given special token, or an error if
// the model does not define it.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokUnknown:
		return p.info.UnknownID, nil
	case api.TokPad:
		return p.info.PadID, nil
	case api.TokBeginningOfSentence:
		return p.info.BeginningOfSentenceID, nil
	case api.TokEndOfSentence:
		return p.info.EndOfSentenceID, nil
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
}
