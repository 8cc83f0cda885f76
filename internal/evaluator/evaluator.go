// Package evaluator scores candidate jobs against a user's careers through the scoring service.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"job-recommender/internal/llm"
	"job-recommender/internal/logger"
	"job-recommender/internal/metrics"
	"job-recommender/internal/repository"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxJobs caps how many candidates one cycle sends to the scoring service.
	MaxJobs = 30
	// BatchSize is the number of jobs per scoring call.
	BatchSize = 10

	FallbackReason = "fallback"
	fallbackScore  = 50
)

// ErrBatchFailure marks a batch whose jobs received the default evaluation. It never leaves Evaluate.
var ErrBatchFailure = errors.New("evaluation batch failed")

type Evaluation struct {
	JobIndex       int
	IsRelevant     bool
	MatchScore     int
	MatchedCareer  string
	Reason         string
	RequiredSkills []string
	SkillMatch     []string
	// Fallback is set on default evaluations substituted for a failed batch or a missing answer.
	Fallback bool
}

// Default is the evaluation given to a job the scoring service could not score.
func Default(index int, careers []string) Evaluation {
	matched := ""
	if len(careers) > 0 {
		matched = careers[0]
	}
	return Evaluation{
		JobIndex:       index,
		IsRelevant:     false,
		MatchScore:     fallbackScore,
		MatchedCareer:  matched,
		Reason:         FallbackReason,
		RequiredSkills: []string{},
		SkillMatch:     []string{},
		Fallback:       true,
	}
}

type Evaluator struct {
	client    llm.Client
	log       logger.Logger
	schema    *gojsonschema.Schema
	maxJobs   int
	batchSize int
}

func New(client llm.Client, log logger.Logger) (*Evaluator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchema))
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}
	if client == nil {
		client = llm.Unavailable{}
	}
	return &Evaluator{
		client:    client,
		log:       logger.OrNop(log),
		schema:    schema,
		maxJobs:   MaxJobs,
		batchSize: BatchSize,
	}, nil
}

// Evaluate returns exactly one evaluation for every index of jobs below MaxJobs. All batches are
// dispatched concurrently; a failing batch only affects its own jobs.
func (e *Evaluator) Evaluate(ctx context.Context, careers []string, jobs []repository.JobListing) map[int]Evaluation {
	n := len(jobs)
	if n > e.maxJobs {
		n = e.maxJobs
	}
	out := make(map[int]Evaluation, n)
	if n == 0 {
		return out
	}

	batches := (n + e.batchSize - 1) / e.batchSize
	results := make([]map[int]Evaluation, batches)

	var g errgroup.Group
	for b := 0; b < batches; b++ {
		start := b * e.batchSize
		end := start + e.batchSize
		if end > n {
			end = n
		}
		g.Go(func() error {
			results[b] = e.evaluateBatch(ctx, careers, jobs[start:end], start)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		for idx, ev := range res {
			out[idx] = ev
		}
	}
	for i := 0; i < n; i++ {
		if _, ok := out[i]; !ok {
			out[i] = Default(i, careers)
		}
	}
	return out
}

func (e *Evaluator) evaluateBatch(ctx context.Context, careers []string, jobs []repository.JobListing, offset int) (res map[int]Evaluation) {
	start := time.Now()
	fallback := func(cause error) map[int]Evaluation {
		metrics.EvaluationBatches.WithLabelValues("fallback").Inc()
		e.log.Warn("scoring batch fell back to defaults", map[string]interface{}{
			"offset": offset,
			"jobs":   len(jobs),
			"err":    fmt.Errorf("%w: %v", ErrBatchFailure, cause),
		})
		m := make(map[int]Evaluation, len(jobs))
		for i := range jobs {
			m[offset+i] = Default(offset+i, careers)
		}
		return m
	}

	defer func() {
		if r := recover(); r != nil {
			res = fallback(fmt.Errorf("panic: %v", r))
		}
	}()

	raw, err := e.client.GenerateJSON(ctx, buildPrompt(careers, jobs, offset))
	if err != nil {
		return fallback(err)
	}
	items, err := e.parse(raw)
	if err != nil {
		return fallback(err)
	}

	m := make(map[int]Evaluation, len(jobs))
	for _, it := range items {
		if it.JobIndex < offset || it.JobIndex >= offset+len(jobs) {
			continue
		}
		if _, dup := m[it.JobIndex]; dup {
			continue
		}
		m[it.JobIndex] = it.toEvaluation(careers)
	}
	missing := 0
	for i := range jobs {
		if _, ok := m[offset+i]; !ok {
			m[offset+i] = Default(offset+i, careers)
			missing++
		}
	}

	metrics.EvaluationBatches.WithLabelValues("ok").Inc()
	e.log.Debug("scoring batch finished", map[string]interface{}{
		"offset":   offset,
		"jobs":     len(jobs),
		"missing":  missing,
		"duration": time.Since(start).String(),
	})
	return m
}

type responseItem struct {
	JobIndex       int      `json:"job_index"`
	IsRelevant     bool     `json:"is_relevant"`
	MatchScore     float64  `json:"match_score"`
	MatchedCareer  string   `json:"matched_career"`
	Reason         string   `json:"reason"`
	RequiredSkills []string `json:"required_skills"`
	SkillMatch     []string `json:"skill_match"`
}

func (it responseItem) toEvaluation(careers []string) Evaluation {
	score := int(math.Round(it.MatchScore))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	matched := strings.TrimSpace(it.MatchedCareer)
	if matched == "" && len(careers) > 0 {
		matched = careers[0]
	}
	req := it.RequiredSkills
	if req == nil {
		req = []string{}
	}
	sm := it.SkillMatch
	if sm == nil {
		sm = []string{}
	}
	return Evaluation{
		JobIndex:       it.JobIndex,
		IsRelevant:     it.IsRelevant,
		MatchScore:     score,
		MatchedCareer:  matched,
		Reason:         strings.TrimSpace(it.Reason),
		RequiredSkills: req,
		SkillMatch:     sm,
	}
}

// parse accepts the array payload, optionally wrapped in a code fence. Anything else is an error.
func (e *Evaluator) parse(raw string) ([]responseItem, error) {
	clean := llm.CleanJSONBlock(raw)
	if clean == "" {
		return nil, errors.New("empty response")
	}

	result, err := e.schema.Validate(gojsonschema.NewStringLoader(clean))
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return nil, fmt.Errorf("response does not match contract: %s", strings.Join(msgs, "; "))
	}

	var items []responseItem
	if err := json.Unmarshal([]byte(clean), &items); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return items, nil
}
