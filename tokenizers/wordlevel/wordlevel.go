// Package wordlevel implements a word-level api.Tokenizer built from a plain
// JSON vocabulary file. It is deliberately small: one id per surface word,
// whitespace/punctuation pre-tokenization and an unknown-token fallback. It is
// used by tests and wherever a full subword model is overkill.
package wordlevel

import (
	"encoding/json"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/docattn/go-docattn/tokenizers/api"
)

// VocabJSON is the on-disk format of a word-level vocabulary.
type VocabJSON struct {
	Vocab     map[string]int `json:"vocab"`
	UnkToken  string         `json:"unk_token"`
	PadToken  string         `json:"pad_token"`
	BosToken  string         `json:"bos_token"`
	EosToken  string         `json:"eos_token"`
	MaskToken string         `json:"mask_token"`
	Lowercase bool           `json:"lowercase"`
}

// Tokenizer implements api.Tokenizer over a word-level vocabulary.
type Tokenizer struct {
	vocab     map[string]int
	idToToken map[int]string
	lowercase bool

	unkID  int
	padID  int
	bosID  int
	eosID  int
	maskID int
}

// Compile time assert that Tokenizer implements the api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// NewFromFile creates a word-level tokenizer from a local JSON vocabulary file.
func NewFromFile(path string) (*Tokenizer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read vocabulary file %q", path)
	}
	return NewFromContent(content)
}

// NewFromContent creates a word-level tokenizer from JSON vocabulary content.
func NewFromContent(content []byte) (*Tokenizer, error) {
	var vj VocabJSON
	if err := json.Unmarshal(content, &vj); err != nil {
		return nil, errors.Wrap(err, "failed to parse vocabulary JSON")
	}
	return New(&vj)
}

// New creates a word-level tokenizer from an already parsed vocabulary.
func New(vj *VocabJSON) (*Tokenizer, error) {
	if len(vj.Vocab) == 0 {
		return nil, errors.New("vocabulary is empty")
	}
	t := &Tokenizer{
		vocab:     vj.Vocab,
		idToToken: make(map[int]string, len(vj.Vocab)),
		lowercase: vj.Lowercase,
		unkID:     -1,
		padID:     -1,
		bosID:     -1,
		eosID:     -1,
		maskID:    -1,
	}
	for token, id := range vj.Vocab {
		t.idToToken[id] = token
	}
	resolve := func(token string, target *int) {
		if token == "" {
			return
		}
		if id, ok := vj.Vocab[token]; ok {
			*target = id
		}
	}
	resolve(vj.UnkToken, &t.unkID)
	resolve(vj.PadToken, &t.padID)
	resolve(vj.BosToken, &t.bosID)
	resolve(vj.EosToken, &t.eosID)
	resolve(vj.MaskToken, &t.maskID)
	return t, nil
}

// Encode converts text to a sequence of token ids. Unknown words map to the
// unknown token id when the vocabulary defines one, and are dropped otherwise.
func (t *Tokenizer) Encode(text string) []int {
	text = norm.NFC.String(text)
	if t.lowercase {
		text = strings.ToLower(text)
	}
	words := preTokenize(text)
	ids := make([]int, 0, len(words))
	for _, word := range words {
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, id)
		} else if t.unkID >= 0 {
			ids = append(ids, t.unkID)
		}
	}
	return ids
}

// Decode converts a sequence of token ids back to space-joined text. Ids not
// present in the vocabulary are skipped.
func (t *Tokenizer) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		token, ok := t.idToToken[id]
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(token)
	}
	return sb.String()
}

// SpecialTokenID returns the id for a given special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	var id int
	switch token {
	case api.TokUnknown:
		id = t.unkID
	case api.TokPad:
		id = t.padID
	case api.TokBeginningOfSentence:
		id = t.bosID
	case api.TokEndOfSentence:
		id = t.eosID
	case api.TokMask:
		id = t.maskID
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
	if id < 0 {
		return 0, errors.Errorf("special token %s not defined in vocabulary", token)
	}
	return id, nil
}

// VocabSize returns the number of entries in the vocabulary.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab)
}

// TokenToID converts a token string to its id.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	id, ok := t.vocab[token]
	return id, ok
}

// preTokenize splits text on whitespace, keeping punctuation runes as
// standalone words.
func preTokenize(text string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case isPunctuation(r):
			flush()
			words = append(words, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}

func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
