package ner

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
)

// TokenClassifier produces per-token label logits for an encoded sequence.
// The returned slice is flat, length len(inputIDs)*NumLabels, row-major by
// token. Implementations must be safe for concurrent use.
type TokenClassifier interface {
	Classify(ctx context.Context, inputIDs, attentionMask, tokenTypeIDs []int64) ([]float32, error)
}

// TokenPrediction is the decoded label for a single word after sub-word
// merging.
type TokenPrediction struct {
	Token      string  `json:"token"`
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// NerEntity is a contiguous BIO run decoded into a single span.
type NerEntity struct {
	Text       string  `json:"text"`
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// Result holds everything one Predict call produced.
type Result struct {
	Text             string            `json:"text"`
	Entities         []NerEntity       `json:"entities"`
	TokenPredictions []TokenPrediction `json:"token_predictions"`
	InferenceTime    time.Duration     `json:"inference_time"`
}

// Pipeline runs tokenization, classification and BIO decoding. The model
// call is bounded by a semaphore so a burst of requests cannot pile
// unbounded inference onto the runtime.
type Pipeline struct {
	tokenizer  *Tokenizer
	classifier TokenClassifier
	sem        *semaphore.Weighted
	log        *logger.Logger
}

// NewPipeline wires a tokenizer and classifier. maxConcurrent bounds
// simultaneous model calls; values <= 0 default to 2.
func NewPipeline(tokenizer *Tokenizer, classifier TokenClassifier, maxConcurrent int, log *logger.Logger) *Pipeline {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Pipeline{
		tokenizer:  tokenizer,
		classifier: classifier,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		log:        log,
	}
}

// Ready reports whether the pipeline has both a tokenizer and a model.
func (p *Pipeline) Ready() bool {
	return p != nil && p.tokenizer != nil && p.classifier != nil
}

// Predict runs the full pipeline on text. The label of a word is the label
// of its first sub-word unit; its confidence is the average over the units.
func (p *Pipeline) Predict(ctx context.Context, text string) (*Result, error) {
	if !p.Ready() {
		return nil, fmt.Errorf("ner pipeline is not initialized")
	}

	start := time.Now()
	enc := p.tokenizer.Encode(text)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire inference slot: %w", err)
	}
	logits, err := p.classifier.Classify(ctx, enc.InputIDs, enc.AttentionMask, enc.TokenTypeIDs)
	p.sem.Release(1)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	if want := len(enc.InputIDs) * NumLabels; len(logits) < want {
		return nil, fmt.Errorf("classifier output has %d values, want at least %d", len(logits), want)
	}

	alignments, keptIdx := AlignTokens(enc.Tokens, enc.Offsets)
	scores := make([]tokenScore, len(keptIdx))
	for i, tokIdx := range keptIdx {
		labelID, conf := decodeToken(logits[tokIdx*NumLabels : (tokIdx+1)*NumLabels])
		scores[i] = tokenScore{labelID: labelID, confidence: conf}
	}

	words := mergeSubwords(alignments, scores)

	preds := make([]TokenPrediction, 0, len(words))
	for _, w := range words {
		label, ok := LabelFromID(w.LabelID)
		if !ok {
			p.log.Warnf("ner_decode", "unknown label id=%d token=%q", w.LabelID, w.Text)
			continue
		}
		preds = append(preds, TokenPrediction{
			Token:      w.Text,
			Label:      label,
			Confidence: w.Confidence,
			Start:      w.Start,
			End:        w.End,
		})
	}

	res := &Result{
		Text:             text,
		Entities:         extractEntities(preds),
		TokenPredictions: preds,
		InferenceTime:    time.Since(start),
	}
	p.log.Debugf("ner_predict", "tokens=%d entities=%d duration=%s",
		len(preds), len(res.Entities), res.InferenceTime)
	return res, nil
}

// decodeToken computes softmax over one token's logits and returns the
// argmax label id with its probability.
func decodeToken(logits []float32) (int, float64) {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	var sum float64
	probs := make([]float64, len(logits))
	for i, v := range logits {
		probs[i] = math.Exp(float64(v - maxLogit))
		sum += probs[i]
	}

	best := 0
	for i := range probs {
		probs[i] /= sum
		if probs[i] > probs[best] {
			best = i
		}
	}
	return best, probs[best]
}

// extractEntities decodes BIO runs. A B- tag opens a span; an I- tag
// extends the open span only when its kind matches. A mismatched I- tag is
// dropped on its own and the open span stays open, so a later matching I-
// still continues it. Only O closes a span. Span confidence is the average
// over its word confidences.
func extractEntities(preds []TokenPrediction) []NerEntity {
	var entities []NerEntity

	var parts []string
	var kind string
	var confSum float64
	var start, end, count int

	flush := func() {
		if count > 0 {
			entities = append(entities, NerEntity{
				Text:       strings.Join(parts, " "),
				Kind:       kind,
				Confidence: confSum / float64(count),
				Start:      start,
				End:        end,
			})
		}
		parts = nil
		count = 0
	}

	for _, p := range preds {
		switch {
		case p.Label.IsBegin():
			flush()
			kind = p.Label.Kind()
			parts = []string{p.Token}
			confSum = p.Confidence
			start, end = p.Start, p.End
			count = 1
		case p.Label.IsInside():
			if count > 0 && p.Label.Kind() == kind {
				parts = append(parts, p.Token)
				confSum += p.Confidence
				end = p.End
				count++
			}
			// A mismatched I- is dropped without closing the span.
		default:
			flush()
		}
	}
	flush()

	return entities
}
