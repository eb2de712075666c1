// Package reconcile turns a SignalBag into a NormalizedProduct, asking a
// language model to resolve conflicting candidates and validating its reply
// against the extracted signals.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kjd1374/shopping-sub000/llm"
	"github.com/kjd1374/shopping-sub000/models"
)

// Completer is the text-completion dependency. *llm.Client implements it.
type Completer interface {
	Available() bool
	Complete(ctx context.Context, prompt string) (*llm.Completion, error)
}

// Source names which branch produced a record.
type Source string

const (
	SourceModel   Source = "model"
	SourceSignals Source = "signals"
)

// Result is the outcome of ReconcileWithFallback.
type Result struct {
	Product *models.NormalizedProduct
	Source  Source

	// ModelErr is why the model branch was abandoned, if it was.
	ModelErr error
}

// Reconciler is safe for concurrent use.
type Reconciler struct {
	model Completer
}

// New creates a Reconciler. model may be nil, in which case every model
// call fails with AI_UNAVAILABLE.
func New(model Completer) *Reconciler {
	return &Reconciler{model: model}
}

const instruction = `You normalize Korean shopping product data for a purchasing agent.
Below is JSON holding candidate values scraped from one product page. Candidates may conflict or be missing.
Reply with ONE JSON object and nothing else, using exactly these keys:
{"name": string, "brand": string, "price": number, "originalPrice": number, "images": [string],
 "category": string, "weight": number, "options": [{"name": string, "price": number, "soldOut": boolean}],
 "description": string}
Rules:
- price is the current selling price in KRW, a plain number without separators.
- originalPrice is the list price before discount; use price when there is no discount.
- weight is the estimated shipping weight in kilograms.
- description is a short Korean summary of at most three sentences.
- Use only information present in the candidates.

Candidates:
`

// BuildPrompt serializes the bag after the fixed instruction.
func BuildPrompt(bag *models.SignalBag) (string, error) {
	b, err := json.Marshal(bag)
	if err != nil {
		return "", fmt.Errorf("marshal signal bag: %w", err)
	}
	return instruction + string(b), nil
}

// Reconcile asks the model and validates its reply. It fails with
// AI_UNAVAILABLE when no model is configured, AI_RESPONSE_PARSE when the
// reply holds no usable JSON object, the client's LLM_* codes on transport
// errors, and PRICE_MISSING when no positive price exists anywhere.
func (r *Reconciler) Reconcile(ctx context.Context, bag *models.SignalBag) (*models.NormalizedProduct, error) {
	if r.model == nil || !r.model.Available() {
		return nil, models.NewScrapeError(models.ErrCodeAIUnavailable, "no model credential configured", nil)
	}

	prompt, err := BuildPrompt(bag)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "failed to build prompt", err)
	}

	completion, err := r.model.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	span, ok := FirstJSONObject(completion.Text)
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeAIParse, "model reply contains no JSON object", nil)
	}
	var c candidate
	if err := json.Unmarshal([]byte(span), &c); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeAIParse, "model reply does not match the product schema", err)
	}

	slog.Debug("model reconciliation done",
		"url", bagURL(bag),
		"tokens", completion.Usage.TotalTokens,
	)
	return validate(c, bag)
}

// ReconcileWithFallback runs the model branch and, when it fails for any
// reason, builds the record from the extracted signals instead. It fails
// only when neither branch can produce a positive price.
//
//	askModel -> validate -> done
//	    \-> fallback(signals) -> done | failed
func (r *Reconciler) ReconcileWithFallback(ctx context.Context, bag *models.SignalBag) (*Result, error) {
	product, modelErr := r.Reconcile(ctx, bag)
	if modelErr == nil {
		return &Result{Product: product, Source: SourceModel}, nil
	}

	if !models.HasCode(modelErr, models.ErrCodeAIUnavailable) {
		slog.Warn("model reconciliation failed, using extracted signals",
			"url", bagURL(bag),
			"error", modelErr,
		)
	}

	product, err := Deterministic(bag)
	if err != nil {
		return nil, err
	}
	return &Result{Product: product, Source: SourceSignals, ModelErr: modelErr}, nil
}

func bagURL(bag *models.SignalBag) string {
	if bag == nil {
		return ""
	}
	return bag.SourceURL
}
