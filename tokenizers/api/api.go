// Package api defines the subword tokenizer capability consumed by the
// multi-document encoder. Concrete implementations live in the sibling
// packages (sentencepiece, wordlevel); keeping the interface separate avoids
// a cyclic dependency between them and the encoder.
package api

// Tokenizer converts text to a sequence of token ids and back.
//
// Implementations must be safe for concurrent use after construction: the
// vocabulary is read-only.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string

	// SpecialTokenID returns the id for the given special token, or an error
	// if the vocabulary does not define it.
	SpecialTokenID(token SpecialToken) (int, error)
}

// SpecialToken is an enum of the special tokens the document encoder cares
// about. The beginning-of-sentence token doubles as the document-start marker.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokSpecialTokensCount
)

// String returns the canonical snake_case name of the special token.
func (t SpecialToken) String() string {
	switch t {
	case TokBeginningOfSentence:
		return "beginning_of_sentence"
	case TokEndOfSentence:
		return "end_of_sentence"
	case TokUnknown:
		return "unknown"
	case TokPad:
		return "pad"
	case TokMask:
		return "mask"
	default:
		return "invalid"
	}
}
