package multidoc

import (
	"github.com/docattn/go-docattn/tokenizers/api"
)

// SegmentTokenizer encodes one passage of text into token ids, stripping the
// beginning/end-of-sentence markers the underlying tokenizer may add: the
// document encoder supplies its own document-start marker instead.
type SegmentTokenizer struct {
	tok   api.Tokenizer
	bosID int
	eosID int
}

// NewSegmentTokenizer wraps tok. bosID and eosID may be negative when the
// vocabulary does not define them, in which case nothing is stripped.
func NewSegmentTokenizer(tok api.Tokenizer, bosID, eosID int) *SegmentTokenizer {
	return &SegmentTokenizer{tok: tok, bosID: bosID, eosID: eosID}
}

// Encode tokenizes text, strips implicit sentence markers and truncates to
// maxLen tokens. A negative maxLen means no cap; zero yields no tokens (the
// passage is reduced to its start marker by the caller).
func (s *SegmentTokenizer) Encode(text string, maxLen int) []int {
	ids := s.tok.Encode(text)
	if len(ids) > 0 && s.bosID >= 0 && ids[0] == s.bosID {
		ids = ids[1:]
	}
	if len(ids) > 0 && s.eosID >= 0 && ids[len(ids)-1] == s.eosID {
		ids = ids[:len(ids)-1]
	}
	if maxLen >= 0 && len(ids) > maxLen {
		ids = ids[:maxLen]
	}
	return ids
}
