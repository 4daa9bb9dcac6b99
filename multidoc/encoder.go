package multidoc

import (
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/docattn/go-docattn/tokenizers/api"
)

// ErrNoPassages reports a source with zero usable passages after splitting and
// truncation. Callers drop the example and continue; it is never a batch
// failure.
var ErrNoPassages = errors.New("no usable passages in source")

// Encoder turns a raw multi-passage example into an Example: one flat token
// sequence with a document-start marker in front of each passage, the boundary
// offset of each marker, a single terminal marker and independently encoded
// target labels.
//
// The encoder is stateless per example and safe for concurrent use: the only
// shared resource is the tokenizer's read-only vocabulary.
type Encoder struct {
	tok api.Tokenizer
	seg *SegmentTokenizer
	cfg Config

	docStartID int
	eosID      int
	padID      int
}

// NewEncoder validates cfg, resolves the special tokens and returns a ready
// encoder. The beginning-of-sentence token is repurposed as the document-start
// marker. A pad token colliding with the loss-ignore sentinel is rejected here,
// never deferred: it would make masked labels ambiguous.
func NewEncoder(tok api.Tokenizer, cfg Config) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bosID, err := tok.SpecialTokenID(api.TokBeginningOfSentence)
	if err != nil {
		return nil, errors.Wrap(err, "document-start marker requires a beginning-of-sentence token")
	}
	eosID, err := tok.SpecialTokenID(api.TokEndOfSentence)
	if err != nil {
		return nil, errors.Wrap(err, "terminal marker requires an end-of-sentence token")
	}
	padID, err := tok.SpecialTokenID(api.TokPad)
	if err != nil {
		return nil, errors.Wrap(err, "batch padding requires a pad token")
	}
	if padID == LabelIgnore {
		return nil, errors.Errorf("pad token id %d collides with the loss-ignore sentinel", padID)
	}
	return &Encoder{
		tok:        tok,
		seg:        NewSegmentTokenizer(tok, bosID, eosID),
		cfg:        cfg,
		docStartID: bosID,
		eosID:      eosID,
		padID:      padID,
	}, nil
}

// Config returns the validated configuration the encoder was built with.
func (e *Encoder) Config() Config { return e.cfg }

// PadID returns the pad token id used for batch padding.
func (e *Encoder) PadID() int { return e.padID }

// Encode encodes one raw source/target pair. It returns ErrNoPassages when the
// source has no usable passages, which callers treat as report-and-skip.
func (e *Encoder) Encode(source, target string) (*Example, error) {
	passages := e.splitPassages(source)
	if len(passages) == 0 {
		return nil, ErrNoPassages
	}

	// One token per passage is reserved for its start marker, which keeps the
	// total length boundable even with many passages.
	perPassageBudget := -1
	if e.cfg.PerPassageLimit {
		perPassageBudget = (e.cfg.GlobalMaxLen - len(passages)) / len(passages)
		if perPassageBudget < 0 {
			perPassageBudget = 0
		}
	}

	var tokenIDs []int
	offsets := make([]int, 0, len(passages))
	for _, passage := range passages {
		segIDs := e.seg.Encode(passage, perPassageBudget)
		// The offset marks where this passage's start marker begins.
		offsets = append(offsets, len(tokenIDs))
		tokenIDs = append(tokenIDs, e.docStartID)
		tokenIDs = append(tokenIDs, segIDs...)
	}
	tokenIDs = append(tokenIDs, e.eosID)

	if len(tokenIDs) > e.cfg.GlobalMaxLen {
		tokenIDs = append(tokenIDs[:e.cfg.GlobalMaxLen-1], e.eosID)
		// A passage whose start marker was truncated away no longer exists as
		// a distinct segment; its offset must not survive either.
		kept := offsets[:0]
		for _, off := range offsets {
			if off < e.cfg.GlobalMaxLen-1 {
				kept = append(kept, off)
			}
		}
		offsets = kept
	}
	if len(offsets) == 0 {
		return nil, ErrNoPassages
	}

	labelIDs := e.encodeTarget(target)

	ex := &Example{
		TokenIDs:        tokenIDs,
		BoundaryOffsets: offsets,
		LabelIDs:        labelIDs,
	}
	if klog.V(2).Enabled() {
		e.logSegments(ex)
	}
	return ex, nil
}

// splitPassages splits the raw source on the passage delimiter, dropping
// passages that are empty or whitespace-only.
func (e *Encoder) splitPassages(source string) []string {
	parts := strings.Split(source, e.cfg.PassageDelimiter)
	passages := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			passages = append(passages, p)
		}
	}
	return passages
}

// encodeTarget encodes the target text independently of the source: sentence
// markers around the stripped subword ids, truncated to MaxTargetLen, then
// optionally padded to the fixed length with pad masking applied.
func (e *Encoder) encodeTarget(target string) []int {
	ids := make([]int, 0, e.cfg.MaxTargetLen)
	ids = append(ids, e.docStartID)
	ids = append(ids, e.seg.Encode(target, -1)...)
	ids = append(ids, e.eosID)
	if len(ids) > e.cfg.MaxTargetLen {
		ids = append(ids[:e.cfg.MaxTargetLen-1], e.eosID)
	}
	if e.cfg.PadToMaxLength {
		for len(ids) < e.cfg.MaxTargetLen {
			ids = append(ids, e.padID)
		}
		// With fixed-length padding the masking happens here; with dynamic
		// padding it is deferred to batch collation.
		if e.cfg.IgnorePadInLoss {
			ids = MaskLabels(ids, e.padID)
		}
	}
	return ids
}

// logSegments decodes each document segment for debug inspection.
func (e *Encoder) logSegments(ex *Example) {
	for i, segment := range ex.Segments() {
		// Skip the start marker; the last segment also carries the terminal
		// marker, which Decode renders harmlessly.
		klog.V(2).Infof("document %d: %q", i, e.tok.Decode(segment[1:]))
	}
	// Loss-ignore sentinels are not decodable; swap them back to pad first.
	labels := make([]int, len(ex.LabelIDs))
	for i, id := range ex.LabelIDs {
		if id == LabelIgnore {
			id = e.padID
		}
		labels[i] = id
	}
	klog.V(2).Infof("labels: %q", e.tok.Decode(labels))
}
