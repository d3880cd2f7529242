package ner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Tokenizer is a WordPiece tokenizer with byte-offset tracking. It reads a
// BERT-style vocab.txt (one token per line, line number = token id) and
// produces the id/mask/offset triples the classification model expects.
type Tokenizer struct {
	vocab     map[string]int
	maxLength int

	clsID int
	sepID int
	unkID int
}

// Special token surface forms.
const (
	clsToken = "[CLS]"
	sepToken = "[SEP]"
	padToken = "[PAD]"
	unkToken = "[UNK]"

	// continuationPrefix marks a sub-word unit that continues the
	// previous token.
	continuationPrefix = "##"
)

// NewTokenizer loads a vocabulary file. maxLength bounds the encoded
// sequence; values <= 0 default to 512.
func NewTokenizer(vocabPath string, maxLength int) (*Tokenizer, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("open vocab %q: %w", vocabPath, err)
	}
	defer f.Close()

	vocab := make(map[string]int)
	scanner := bufio.NewScanner(f)
	for id := 0; scanner.Scan(); id++ {
		vocab[strings.TrimSpace(scanner.Text())] = id
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocab %q: %w", vocabPath, err)
	}

	return newTokenizerFromVocab(vocab, maxLength)
}

func newTokenizerFromVocab(vocab map[string]int, maxLength int) (*Tokenizer, error) {
	if maxLength <= 0 {
		maxLength = 512
	}
	t := &Tokenizer{vocab: vocab, maxLength: maxLength}

	var ok bool
	if t.clsID, ok = vocab[clsToken]; !ok {
		return nil, fmt.Errorf("vocab is missing %s", clsToken)
	}
	if t.sepID, ok = vocab[sepToken]; !ok {
		return nil, fmt.Errorf("vocab is missing %s", sepToken)
	}
	if t.unkID, ok = vocab[unkToken]; !ok {
		return nil, fmt.Errorf("vocab is missing %s", unkToken)
	}
	return t, nil
}

// Encoding is the model input for one text, plus the token surface forms
// and their byte-offset pairs into the original text. Special tokens carry
// a zero offset pair.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	Tokens        []string
	Offsets       [][2]int
}

// Encode tokenizes text into WordPiece units wrapped in [CLS]/[SEP],
// truncated to the configured maximum length.
func (t *Tokenizer) Encode(text string) Encoding {
	words := basicTokenize(text)

	enc := Encoding{}
	appendToken := func(token string, id int, start, end int) {
		enc.InputIDs = append(enc.InputIDs, int64(id))
		enc.AttentionMask = append(enc.AttentionMask, 1)
		enc.TokenTypeIDs = append(enc.TokenTypeIDs, 0)
		enc.Tokens = append(enc.Tokens, token)
		enc.Offsets = append(enc.Offsets, [2]int{start, end})
	}

	appendToken(clsToken, t.clsID, 0, 0)
	for _, w := range words {
		for _, sub := range t.wordPiece(w) {
			id, ok := t.vocab[sub.token]
			if !ok {
				id = t.unkID
			}
			appendToken(sub.token, id, sub.start, sub.end)
		}
	}
	appendToken(sepToken, t.sepID, 0, 0)

	if len(enc.InputIDs) > t.maxLength {
		enc.InputIDs = enc.InputIDs[:t.maxLength]
		enc.AttentionMask = enc.AttentionMask[:t.maxLength]
		enc.TokenTypeIDs = enc.TokenTypeIDs[:t.maxLength]
		enc.Tokens = enc.Tokens[:t.maxLength]
		enc.Offsets = enc.Offsets[:t.maxLength]
	}
	return enc
}

// word is a basic-tokenized unit with its byte span.
type word struct {
	text  string
	start int
	end   int
}

// basicTokenize splits on whitespace and breaks punctuation into its own
// token, tracking byte offsets into the input.
func basicTokenize(text string) []word {
	var words []word
	var cur strings.Builder
	curStart := 0

	flush := func(end int) {
		if cur.Len() > 0 {
			words = append(words, word{text: cur.String(), start: curStart, end: end})
			cur.Reset()
		}
	}

	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush(i)
		case unicode.IsPunct(r):
			flush(i)
			words = append(words, word{text: string(r), start: i, end: i + len(string(r))})
		default:
			if cur.Len() == 0 {
				curStart = i
			}
			cur.WriteRune(r)
		}
	}
	flush(len(text))
	return words
}

// subToken is one WordPiece unit of a word with its byte span.
type subToken struct {
	token string
	start int
	end   int
}

// wordPiece splits one word into the longest vocabulary prefixes, marking
// continuations with "##". A word with no decomposition becomes [UNK]
// spanning the whole word.
func (t *Tokenizer) wordPiece(w word) []subToken {
	runes := []rune(w.text)
	if len(runes) == 0 {
		return nil
	}

	// Byte offset of each rune boundary within the word.
	bounds := make([]int, len(runes)+1)
	for i, r := range runes {
		bounds[i+1] = bounds[i] + len(string(r))
	}

	var tokens []subToken
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		var piece string

		for end > start {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = continuationPrefix + candidate
			}
			if _, ok := t.vocab[candidate]; ok {
				piece = candidate
				found = true
				break
			}
			end--
		}

		if !found {
			return []subToken{{token: unkToken, start: w.start, end: w.end}}
		}
		tokens = append(tokens, subToken{
			token: piece,
			start: w.start + bounds[start],
			end:   w.start + bounds[end],
		})
		start = end
	}
	return tokens
}

// TokenAlignment is one model token aligned back to the original text,
// with structural markers removed and continuation units flagged.
type TokenAlignment struct {
	Token          string
	Start          int
	End            int
	IsContinuation bool
}

// AlignTokens filters out bracket-delimited special tokens and strips the
// continuation prefix, keeping byte offsets. The returned slice is parallel
// to the kept subset of the input: callers pairing alignments with
// per-token predictions must apply the same filter to both (see Pipeline).
func AlignTokens(tokens []string, offsets [][2]int) ([]TokenAlignment, []int) {
	alignments := make([]TokenAlignment, 0, len(tokens))
	keptIdx := make([]int, 0, len(tokens))

	for i, tok := range tokens {
		if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
			continue
		}
		cont := strings.HasPrefix(tok, continuationPrefix)
		alignments = append(alignments, TokenAlignment{
			Token:          strings.TrimPrefix(tok, continuationPrefix),
			Start:          offsets[i][0],
			End:            offsets[i][1],
			IsContinuation: cont,
		})
		keptIdx = append(keptIdx, i)
	}
	return alignments, keptIdx
}

// WordPrediction is a merged run of sub-word units forming one word, with
// the label of its first unit and the average confidence across units.
type WordPrediction struct {
	Text       string
	LabelID    int
	Confidence float64
	Start      int
	End        int
}

// tokenScore pairs one token's predicted label id with its probability.
type tokenScore struct {
	labelID    int
	confidence float64
}

// mergeSubwords walks aligned tokens in order: a non-continuation token
// starts a new word (flushing the previous one), a continuation appends its
// text and folds its confidence into the running average. The finished word
// keeps the label of its first unit.
func mergeSubwords(alignments []TokenAlignment, scores []tokenScore) []WordPrediction {
	var merged []WordPrediction

	var cur WordPrediction
	var confSum float64
	count := 0

	flush := func() {
		if count > 0 {
			cur.Confidence = confSum / float64(count)
			merged = append(merged, cur)
		}
		count = 0
	}

	for i, a := range alignments {
		if i < len(scores) && a.IsContinuation && count > 0 {
			cur.Text += a.Token
			cur.End = a.End
			confSum += scores[i].confidence
			count++
			continue
		}
		if i >= len(scores) {
			break
		}
		flush()
		cur = WordPrediction{
			Text:    a.Token,
			LabelID: scores[i].labelID,
			Start:   a.Start,
			End:     a.End,
		}
		confSum = scores[i].confidence
		count = 1
	}
	flush()

	return merged
}
