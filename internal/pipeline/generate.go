package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contentgen/internal/domain"
	"contentgen/internal/providers/image"
	"contentgen/internal/providers/quality"
)

const conservativeDirective = "Keep the scene simple and wholesome: only the product, tableware and a plain background, no people or text."

// attempt is the loop state for one generation try. Each iteration derives
// the next value; nothing is mutated in place.
type attempt struct {
	Number int
	// Hint accumulates the evaluator's improvement hints.
	Hint string
	// SafetyRetry is set once any attempt was safety blocked: reference
	// images are dropped and the prompt is made more conservative.
	SafetyRetry bool
}

func (a attempt) next(hint string, safetyBlocked bool) attempt {
	return attempt{Number: a.Number + 1, Hint: mergeHint(a.Hint, hint), SafetyRetry: a.SafetyRetry || safetyBlocked}
}

func (a attempt) prompt(base string) string {
	var sb strings.Builder
	sb.WriteString(base)
	if a.SafetyRetry {
		sb.WriteString("\n")
		sb.WriteString(conservativeDirective)
	}
	if a.Hint != "" {
		sb.WriteString("\nA previous attempt was rejected; address this: ")
		sb.WriteString(a.Hint)
	}
	return sb.String()
}

func mergeHint(prev, next string) string {
	next = strings.TrimSpace(next)
	switch {
	case next == "" || strings.Contains(prev, next):
		return prev
	case prev == "":
		return next
	}
	return prev + " " + next
}

// generate runs the bounded attempt loop. It returns nil once an image passes
// quality control and domain.ErrRetriesExhausted when none does.
func (r *run) generate(ctx context.Context) error {
	maxAttempts := r.o.opts.MaxAttempts
	var last error
	for a := (attempt{Number: 1}); a.Number <= maxAttempts; {
		if err := r.enter(ctx, domain.StageImageGeneration); err != nil {
			return err
		}
		prompt := a.prompt(r.prompt)
		rec := domain.AttemptRecord{Number: a.Number, Prompt: prompt, Hint: a.Hint}
		log := r.logger.With().Int("attempt", a.Number).Logger()

		gen, err := r.o.opts.Images.Generate(ctx, r.generateRequest(a, prompt))
		r.addCost(domain.StageImageGeneration, providerOr(gen.Provider, "image"), a.Number, gen.Cost, 0, err)
		rec.Cost += gen.Cost
		r.leave(domain.StageImageGeneration)
		if err != nil {
			safety := errors.Is(err, domain.ErrSafetyBlocked)
			rec.Outcome = domain.AttemptGenerationError
			if safety {
				rec.Outcome = domain.AttemptSafetyBlocked
				rec.SafetyBlocked = true
			}
			rec.Error = err.Error()
			r.result.Attempts = append(r.result.Attempts, rec)
			log.Warn().Err(err).Bool("safety_blocked", safety).Msg("image generation failed")
			last = err
			a = a.next("", safety)
			continue
		}

		if err := r.enter(ctx, domain.StageQualityControl); err != nil {
			return err
		}
		verdict, err := r.o.opts.Quality.Evaluate(ctx, quality.EvaluateRequest{
			RunID:     r.result.RunID,
			Attempt:   a.Number,
			Image:     gen.Data,
			Format:    gen.Format,
			Scenario:  r.scenario,
			Product:   r.result.Assets[domain.RoleProduct],
			Prompt:    prompt,
			PassScore: r.o.opts.MinQualityScore,
		})
		r.addCost(domain.StageQualityControl, providerOr(verdict.Provider, "quality"), a.Number, verdict.Cost, 0, err)
		rec.Cost += verdict.Cost
		r.leave(domain.StageQualityControl)
		if err != nil {
			rec.Outcome = domain.AttemptEvaluationError
			rec.Error = err.Error()
			r.result.Attempts = append(r.result.Attempts, rec)
			log.Warn().Err(err).Msg("quality evaluation failed")
			last = err
			a = a.next("", false)
			continue
		}

		rec.Score = verdict.Score
		r.result.Quality = &domain.QualityResult{
			Passed:   verdict.Passed,
			Score:    verdict.Score,
			Feedback: verdict.Feedback,
			Cost:     verdict.Cost,
		}
		if verdict.Passed {
			rec.Outcome = domain.AttemptPassed
			r.result.Attempts = append(r.result.Attempts, rec)
			r.image = &gen
			log.Info().Int("score", verdict.Score).Msg("image accepted")
			return nil
		}

		rec.Outcome = domain.AttemptRejected
		rec.Error = verdict.Feedback
		r.result.Attempts = append(r.result.Attempts, rec)
		log.Info().Int("score", verdict.Score).Bool("regenerate", verdict.Regenerate).Str("hint", verdict.Hint).Msg("image rejected")
		last = fmt.Errorf("quality score %d below %d", verdict.Score, r.o.opts.MinQualityScore)
		hint := ""
		if verdict.Regenerate {
			hint = verdict.Hint
		}
		a = a.next(hint, false)
	}
	return &domain.StageError{
		Stage: r.result.Stage,
		Err:   fmt.Errorf("%w after %d attempts: %v", domain.ErrRetriesExhausted, maxAttempts, last),
	}
}

func (r *run) generateRequest(a attempt, prompt string) image.GenerateRequest {
	req := image.GenerateRequest{
		Prompt:      prompt,
		AspectRatio: r.o.opts.AspectRatio,
		RequestID:   fmt.Sprintf("%s-%d", r.slot.ID, a.Number),
		Seed:        r.seed + int64(a.Number-1),
	}
	if product, ok := r.selected[domain.RoleProduct]; ok {
		req.BaseImage = &image.SourceImage{AssetID: product.ID, URL: product.ImageURL}
	}
	if a.SafetyRetry {
		return req
	}
	for _, role := range r.roles {
		if role == domain.RoleProduct {
			continue
		}
		if asset, ok := r.selected[role]; ok && asset.ImageURL != "" {
			req.References = append(req.References, image.SourceImage{AssetID: asset.ID, URL: asset.ImageURL})
		}
	}
	return req
}

func providerOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
