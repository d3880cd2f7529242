package ner

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
)

// ONNXClassifier runs a token-classification model through onnxruntime.
// The session is built with a fixed sequence length and preallocated
// input/output tensors; shorter encodings are padded with zeros. A mutex
// serializes Run calls because the tensors are shared session state.
type ONNXClassifier struct {
	mu      sync.Mutex
	session *ort.AdvancedSession

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]

	seqLen    int
	numLabels int
	log       *logger.Logger
}

// ONNXConfig configures classifier loading.
type ONNXConfig struct {
	ModelPath string
	// LibraryPath points at the onnxruntime shared library. Empty means
	// the loader's default lookup.
	LibraryPath string
	MaxSeqLen      int
	IntraOpThreads int
	InterOpThreads int
}

// NewONNXClassifier initializes the onnxruntime environment (once per
// process) and builds a session for the model.
func NewONNXClassifier(cfg ONNXConfig, log *logger.Logger) (*ONNXClassifier, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 512
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	if cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("set intra threads: %w", err)
		}
	}
	if cfg.InterOpThreads > 0 {
		if err := opts.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
			return nil, fmt.Errorf("set inter threads: %w", err)
		}
	}

	inputShape := ort.NewShape(1, int64(cfg.MaxSeqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		inputIDs.Destroy()
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	tokenType, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		return nil, fmt.Errorf("allocate token_type_ids tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.MaxSeqLen), int64(NumLabels)))
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		tokenType.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"logits"},
		[]ort.Value{inputIDs, attnMask, tokenType},
		[]ort.Value{output},
		opts,
	)
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		tokenType.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	log.Infof("onnx_load", "model=%s seq_len=%d labels=%d",
		cfg.ModelPath, cfg.MaxSeqLen, NumLabels)
	return &ONNXClassifier{
		session:       session,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		tokenTypeIDs:  tokenType,
		output:        output,
		seqLen:        cfg.MaxSeqLen,
		numLabels:     NumLabels,
		log:           log,
	}, nil
}

// Classify runs the model on one encoded sequence and returns the logits
// for its tokens, flat [len(inputIDs) * NumLabels].
func (c *ONNXClassifier) Classify(ctx context.Context, inputIDs, attentionMask, tokenTypeIDs []int64) ([]float32, error) {
	if len(inputIDs) > c.seqLen {
		return nil, fmt.Errorf("sequence of %d tokens exceeds model limit %d", len(inputIDs), c.seqLen)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fillPadded(c.inputIDs.GetData(), inputIDs)
	fillPadded(c.attentionMask.GetData(), attentionMask)
	fillPadded(c.tokenTypeIDs.GetData(), tokenTypeIDs)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	raw := c.output.GetData()
	want := len(inputIDs) * c.numLabels
	if len(raw) < want {
		return nil, fmt.Errorf("onnx output has %d values, want %d", len(raw), want)
	}
	logits := make([]float32, want)
	copy(logits, raw[:want])
	return logits, nil
}

// Close releases the session and its tensors.
func (c *ONNXClassifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{c.inputIDs, c.attentionMask, c.tokenTypeIDs} {
		if t != nil {
			t.Destroy()
		}
	}
	if c.output != nil {
		c.output.Destroy()
	}
}

func fillPadded(dst, src []int64) {
	n := copy(dst, src)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
