package wordlevel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docattn/go-docattn/tokenizers/api"
)

func testVocab() *VocabJSON {
	return &VocabJSON{
		Vocab: map[string]int{
			"<pad>":  0,
			"<s>":    1,
			"</s>":   2,
			"<unk>":  3,
			"the":    4,
			"food":   5,
			"was":    6,
			"great":  7,
			"bad":    8,
			"!":      9,
			"really": 10,
		},
		UnkToken:  "<unk>",
		PadToken:  "<pad>",
		BosToken:  "<s>",
		EosToken:  "</s>",
		Lowercase: true,
	}
}

func TestEncodeDecode(t *testing.T) {
	tok, err := New(testVocab())
	require.NoError(t, err)

	ids := tok.Encode("The food was great!")
	assert.Equal(t, []int{4, 5, 6, 7, 9}, ids)
	assert.Equal(t, "the food was great !", tok.Decode(ids))
}

func TestEncodeUnknownFallback(t *testing.T) {
	tok, err := New(testVocab())
	require.NoError(t, err)

	ids := tok.Encode("the spaghetti was great")
	assert.Equal(t, []int{4, 3, 6, 7}, ids)
}

func TestSpecialTokenIDs(t *testing.T) {
	tok, err := New(testVocab())
	require.NoError(t, err)

	tests := []struct {
		token api.SpecialToken
		want  int
	}{
		{api.TokPad, 0},
		{api.TokBeginningOfSentence, 1},
		{api.TokEndOfSentence, 2},
		{api.TokUnknown, 3},
	}
	for _, tt := range tests {
		t.Run(tt.token.String(), func(t *testing.T) {
			id, err := tok.SpecialTokenID(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}

	// Mask is not defined in this vocabulary.
	_, err = tok.SpecialTokenID(api.TokMask)
	assert.Error(t, err)
}

func TestNewFromContent(t *testing.T) {
	content := []byte(`{"vocab": {"a": 0, "b": 1, "<unk>": 2}, "unk_token": "<unk>"}`)
	tok, err := NewFromContent(content)
	require.NoError(t, err)
	assert.Equal(t, 3, tok.VocabSize())
	assert.Equal(t, []int{0, 1, 2}, tok.Encode("a b c"))
}

func TestEmptyVocabRejected(t *testing.T) {
	_, err := NewFromContent([]byte(`{"vocab": {}}`))
	assert.Error(t, err)
}
