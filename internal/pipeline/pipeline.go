package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ericlam1114/datasynthetix-api/internal/config"
	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

// ChatCompleter is the slice of the AI client the pipeline needs.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, modelName, system, user string) (string, error)
	IsConfigured() bool
}

// ChunkResult is the outcome of running one chunk through all three stages.
// A stage failure marks the chunk failed but never aborts the job; the
// remaining chunks still run.
type ChunkResult struct {
	Index          int                  `json:"index"`
	Success        bool                 `json:"success"`
	FailedStage    model.Stage          `json:"failedStage,omitempty"`
	Error          string               `json:"error,omitempty"`
	Extracted      []string             `json:"extracted,omitempty"`
	Classification model.Classification `json:"classification,omitempty"`
	Variant        string               `json:"variant,omitempty"`
}

// Pipeline invokes the extractor, classifier and duplicator models
// sequentially for each chunk, each stage under its own deadline.
type Pipeline struct {
	ai  ChatCompleter
	cfg config.AIConfig
}

func New(ai ChatCompleter, cfg config.AIConfig) *Pipeline {
	if cfg.ExtractTimeout == 0 {
		cfg.ExtractTimeout = 30 * time.Second
	}
	if cfg.ClassifyTimeout == 0 {
		cfg.ClassifyTimeout = 15 * time.Second
	}
	if cfg.VariantTimeout == 0 {
		cfg.VariantTimeout = 20 * time.Second
	}
	return &Pipeline{ai: ai, cfg: cfg}
}

// RunChunk executes extract → classify → duplicate for one chunk. The error
// return is reserved for context cancellation; stage failures come back
// inside the result.
func (p *Pipeline) RunChunk(ctx context.Context, chunk model.DocumentChunk) (*ChunkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Without a configured client every stage is mocked; development and
	// tests run the full job lifecycle against deterministic output.
	if p.ai == nil || !p.ai.IsConfigured() {
		return p.runMock(chunk), nil
	}

	result := &ChunkResult{Index: chunk.Index}

	extracted, err := p.runExtract(ctx, chunk.Text)
	if err != nil {
		return p.failed(result, model.StageExtract, err, ctx)
	}
	result.Extracted = extracted

	classification, err := p.runClassify(ctx, extracted)
	if err != nil {
		return p.failed(result, model.StageClassify, err, ctx)
	}
	result.Classification = classification

	variant, err := p.runDuplicate(ctx, extracted, classification)
	if err != nil {
		return p.failed(result, model.StageDuplicate, err, ctx)
	}
	result.Variant = variant

	result.Success = true
	return result, nil
}

// failed converts a stage error into a failed chunk result. Cancellation of
// the whole job still surfaces as an error so the caller stops issuing
// stage calls.
func (p *Pipeline) failed(result *ChunkResult, stage model.Stage, err error, ctx context.Context) (*ChunkResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	result.Success = false
	result.FailedStage = stage
	result.Error = err.Error()
	return result, nil
}

func (p *Pipeline) runExtract(ctx context.Context, text string) ([]string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()

	reply, err := p.ai.ChatCompletion(stageCtx, p.cfg.ExtractorModel, extractSystemPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("extract stage: %w", err)
	}

	clauses := parseClauses(reply)
	if len(clauses) == 0 {
		return nil, fmt.Errorf("extract stage: no clauses in reply")
	}
	return clauses, nil
}

func (p *Pipeline) runClassify(ctx context.Context, clauses []string) (model.Classification, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
	defer cancel()

	reply, err := p.ai.ChatCompletion(stageCtx, p.cfg.ClassifierModel, classifySystemPrompt, strings.Join(clauses, "\n"))
	if err != nil {
		return "", fmt.Errorf("classify stage: %w", err)
	}

	return ParseClassification(reply), nil
}

func (p *Pipeline) runDuplicate(ctx context.Context, clauses []string, classification model.Classification) (string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.VariantTimeout)
	defer cancel()

	user := buildDuplicatePrompt(clauses, classification)
	reply, err := p.ai.ChatCompletion(stageCtx, p.cfg.DuplicatorModel, duplicateSystemPrompt, user)
	if err != nil {
		return "", fmt.Errorf("duplicate stage: %w", err)
	}

	variant := strings.TrimSpace(reply)
	if variant == "" {
		return "", fmt.Errorf("duplicate stage: empty variant")
	}
	return variant, nil
}

// ParseClassification maps a free-text classifier reply onto the label enum.
// The classifier is fine-tuned to answer with one literal label, but replies
// wrapped in prose still resolve; anything else is Unclassified.
func ParseClassification(reply string) model.Classification {
	trimmed := strings.TrimSpace(reply)

	// Exact label first.
	for _, c := range []model.Classification{
		model.ClassificationCritical,
		model.ClassificationImportant,
		model.ClassificationStandard,
	} {
		if strings.EqualFold(trimmed, string(c)) {
			return c
		}
	}

	// Otherwise the earliest label mentioned in the reply wins.
	lower := strings.ToLower(reply)
	best := model.ClassificationUnclassified
	bestIdx := len(lower) + 1
	for _, c := range []model.Classification{
		model.ClassificationCritical,
		model.ClassificationImportant,
		model.ClassificationStandard,
	} {
		if idx := strings.Index(lower, strings.ToLower(string(c))); idx >= 0 && idx < bestIdx {
			best = c
			bestIdx = idx
		}
	}
	return best
}

// parseClauses splits the extractor reply into one clause per non-empty line.
func parseClauses(reply string) []string {
	var clauses []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		if line == "" {
			continue
		}
		clauses = append(clauses, line)
	}
	return clauses
}

// runMock produces deterministic output so jobs complete end to end without
// an inference endpoint.
func (p *Pipeline) runMock(chunk model.DocumentChunk) *ChunkResult {
	text := strings.TrimSpace(chunk.Text)
	clause := text
	if idx := strings.IndexAny(text, ".!?"); idx > 0 && idx < len(text)-1 {
		clause = strings.TrimSpace(text[:idx+1])
	}

	classifications := []model.Classification{
		model.ClassificationCritical,
		model.ClassificationImportant,
		model.ClassificationStandard,
	}

	return &ChunkResult{
		Index:          chunk.Index,
		Success:        true,
		Extracted:      []string{clause},
		Classification: classifications[chunk.Index%len(classifications)],
		Variant:        fmt.Sprintf("In accordance with established policy, %s", lowerFirst(clause)),
	}
}

func lowerFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToLower(string(r[0])) + string(r[1:])
}
