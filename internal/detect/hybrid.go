package detect

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/metrics"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/ner"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/pii"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/presidio"
)

// nerConfidenceFloor drops model predictions the decoder is unsure about
// before they reach fusion.
const nerConfidenceFloor = 0.5

// remoteBoost is added to remote analyzer findings of types the analyzer
// is known to be strong at.
const remoteBoost = 0.05

// contextWindow is how many bytes around a remote finding are scanned for
// confidence-adjusting keywords.
const contextWindow = 40

// Detector fuses the pattern, model and remote layers according to the
// current mode. Mode and language can change at runtime; a mode whose
// layers are unavailable degrades to the strongest available one. Safe for
// concurrent use.
type Detector struct {
	mu       sync.RWMutex
	mode     Mode
	language string

	pattern  *pii.PatternDetector
	pipeline *ner.Pipeline
	remote   *presidio.Client // nil when the remote layer is disabled
	mapper   *presidio.Mapper
	adjuster *presidio.ConfidenceAdjuster

	store ResultStore // nil disables result caching

	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewDetector wires the layers. pipeline and remote may be nil; the
// detector then degrades modes that need them. store may be nil to disable
// caching of model results.
func NewDetector(pattern *pii.PatternDetector, pipeline *ner.Pipeline, remote *presidio.Client, store ResultStore, m *metrics.Metrics, log *logger.Logger) *Detector {
	return &Detector{
		mode:     ModeHybrid,
		language: "en",
		pattern:  pattern,
		pipeline: pipeline,
		remote:   remote,
		mapper:   presidio.NewMapper(),
		adjuster: presidio.NewConfidenceAdjuster(),
		store:    store,
		metrics:  m,
		log:      log,
	}
}

// Mode returns the currently requested detection mode.
func (d *Detector) Mode() Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// SetMode switches the requested detection mode.
func (d *Detector) SetMode(m Mode) {
	d.mu.Lock()
	d.mode = m
	d.mu.Unlock()
	d.log.Infof("set_mode", "detection mode set to %s", m)
}

// Language returns the analysis language.
func (d *Detector) Language() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.language
}

// SetLanguage switches the analysis language sent to the remote analyzer.
func (d *Detector) SetLanguage(lang string) {
	d.mu.Lock()
	d.language = lang
	d.mu.Unlock()
	d.log.Infof("set_language", "analysis language set to %s", lang)
}

// Status probes each layer. The remote probe uses ctx; pass a deadline.
func (d *Detector) Status(ctx context.Context) LayerStatus {
	s := LayerStatus{
		Pattern: d.pattern != nil,
		Ner:     d.pipeline.Ready(),
	}
	if d.remote != nil {
		s.Remote = d.remote.Ping(ctx) == nil
	}
	return s
}

// Detect runs the layers the current mode calls for and fuses their
// candidates into a non-overlapping, start-ordered entity list.
func (d *Detector) Detect(ctx context.Context, text string) ([]pii.Entity, error) {
	d.mu.RLock()
	mode := d.mode
	language := d.language
	d.mu.RUnlock()

	d.metrics.DetectTotal.Add(1)

	mode = d.effectiveMode(mode)

	var candidates []pii.Entity

	if mode == ModePatternOnly || mode == ModeHybrid || mode == ModeFull || mode == modePatternRemote {
		candidates = append(candidates, d.detectPattern(text)...)
	}

	if mode == ModeNerOnly || mode == ModeHybrid || mode == ModeFull {
		found, err := d.detectNer(ctx, text, language)
		if err != nil {
			d.metrics.ErrorsNer.Add(1)
			return nil, err
		}
		d.metrics.NerEntities.Add(int64(len(found)))
		candidates = append(candidates, found...)
	}

	if mode == ModePresidioOnly || mode == ModeFull || mode == modePatternRemote {
		found, err := d.detectRemote(ctx, text, language)
		switch {
		case errors.Is(err, presidio.ErrUnavailable):
			// Degrade mid-request: Full keeps its local layers,
			// PresidioOnly falls back to pattern plus the model when ready.
			d.metrics.ErrorsRemote.Add(1)
			d.metrics.LayerFallbacks.Add(1)
			d.log.Warnf("layer_fallback", "remote unavailable: %v", err)
			if mode == ModePresidioOnly {
				candidates = append(candidates, d.detectPattern(text)...)
				if d.pipeline.Ready() {
					local, nerErr := d.detectNer(ctx, text, language)
					if nerErr != nil {
						d.metrics.ErrorsNer.Add(1)
						return nil, nerErr
					}
					d.metrics.NerEntities.Add(int64(len(local)))
					candidates = append(candidates, local...)
				}
			}
		case err != nil:
			d.metrics.ErrorsRemote.Add(1)
			return nil, err
		default:
			d.metrics.RemoteEntities.Add(int64(len(found)))
			candidates = append(candidates, found...)
		}
	}

	merged := mergeCandidates(candidates)
	d.log.Debugf("detect", "mode=%s candidates=%d merged=%d", mode, len(candidates), len(merged))
	return merged, nil
}

// effectiveMode downgrades mode to the strongest one the available layers
// support, counting a fallback when a downgrade happens. The pattern layer
// is always available, so no downgrade ever drops it from a mode that ran
// it: Full without the model keeps pattern plus remote.
func (d *Detector) effectiveMode(mode Mode) Mode {
	orig := mode

	if (mode == ModePresidioOnly || mode == ModeFull) && d.remote == nil {
		mode = ModeHybrid
	}
	if (mode == ModeNerOnly || mode == ModeHybrid || mode == ModeFull) && !d.pipeline.Ready() {
		switch mode {
		case ModeNerOnly, ModeHybrid:
			mode = ModePatternOnly
		case ModeFull:
			mode = modePatternRemote
		}
	}

	if mode != orig {
		d.metrics.LayerFallbacks.Add(1)
		d.log.Warnf("layer_fallback", "requested=%s effective=%s", orig, mode)
	}
	return mode
}

// detectPattern runs the regex layer with its latency and entity counters.
func (d *Detector) detectPattern(text string) []pii.Entity {
	start := time.Now()
	found := d.pattern.Detect(text)
	found = append(found, d.pattern.DetectPersonNames(text)...)
	d.metrics.RecordPatternLatency(time.Since(start))
	d.metrics.PatternEntities.Add(int64(len(found)))
	return found
}

// detectNer runs the model layer, consulting the result store first. Model
// findings are converted to internal types; MISC predictions and
// low-confidence spans are dropped.
func (d *Detector) detectNer(ctx context.Context, text, language string) ([]pii.Entity, error) {
	var key string
	if d.store != nil {
		key = CacheKey(text, string(ModeNerOnly), language)
		if raw, ok := d.store.Get(key); ok {
			var cached []pii.Entity
			if err := json.Unmarshal(raw, &cached); err == nil {
				d.metrics.CacheHits.Add(1)
				return cached, nil
			}
			// Corrupt entry; drop it and recompute.
			d.store.Delete(key)
		}
		d.metrics.CacheMisses.Add(1)
	}

	start := time.Now()
	res, err := d.pipeline.Predict(ctx, text)
	if err != nil {
		return nil, err
	}
	d.metrics.RecordNerLatency(time.Since(start))

	entities := make([]pii.Entity, 0, len(res.Entities))
	for _, e := range res.Entities {
		if e.Confidence < nerConfidenceFloor {
			continue
		}
		t, ok := entityTypeForKind(e.Kind)
		if !ok {
			continue
		}
		entities = append(entities, pii.Entity{
			Type:       t,
			Text:       e.Text,
			Start:      e.Start,
			End:        e.End,
			Confidence: e.Confidence,
		})
	}

	if d.store != nil {
		if raw, err := json.Marshal(entities); err == nil {
			d.store.Set(key, raw)
		}
	}
	return entities, nil
}

// detectRemote calls the remote analyzer, converts its findings and
// applies keyword-context confidence adjustment plus the per-type boost.
func (d *Detector) detectRemote(ctx context.Context, text, language string) ([]pii.Entity, error) {
	start := time.Now()
	remote, err := d.remote.Analyze(ctx, text, language)
	if err != nil {
		return nil, err
	}
	d.metrics.RecordRemoteLatency(time.Since(start))

	entities := d.mapper.ConvertEntities(remote, text)
	for i := range entities {
		entities[i].Confidence = d.adjuster.Adjust(entities[i], surrounding(text, entities[i]))
		switch entities[i].Type {
		case pii.Identification, pii.Email, pii.Phone:
			entities[i].Confidence += remoteBoost
			if entities[i].Confidence > 1.0 {
				entities[i].Confidence = 1.0
			}
		}
	}
	return d.adjuster.Filter(entities), nil
}

// entityTypeForKind maps a model label kind onto an internal entity type.
func entityTypeForKind(kind string) (pii.EntityType, bool) {
	switch kind {
	case "PER":
		return pii.Person, true
	case "ORG":
		return pii.Organization, true
	case "LOC":
		return pii.Location, true
	}
	return "", false
}

// surrounding slices a context window around e for keyword scanning.
func surrounding(text string, e pii.Entity) string {
	lo := e.Start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := e.End + contextWindow
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

// Close releases the result store.
func (d *Detector) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
