// Package agent runs article-production capabilities. Each capability is
// a Role (a strategy bundle of reason, act, and observe functions) driven
// by a single shared loop; roles never subclass or re-implement the loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/draftsmith/draftsmith/internal/config"
	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/provider"
	"github.com/draftsmith/draftsmith/internal/types"
)

// Observation is the structured result of one reason/act/observe round.
type Observation struct {
	Round  int
	Plan   string
	Output string
	Score  *float64
	Meta   map[string]any
}

// Scratchpad is the per-call working state: the input, the history of
// observations so far, and the accumulated spend. A fresh scratchpad is
// built for every Run call, so concurrent runs never share state.
type Scratchpad struct {
	Input   types.Artifact
	RunID   string
	Topic   string
	Seed    map[string]string
	Params  map[string]any
	Profile config.Profile

	// Stash holds role-private working values that survive across
	// rounds, such as fetched source digests.
	Stash map[string]any

	Round     int // current round, 1-based
	MaxRounds int
	History   []Observation

	Log *slog.Logger

	metrics types.Metrics
}

// Last returns the most recent observation, or nil before the first round
// completes.
func (sp *Scratchpad) Last() *Observation {
	if len(sp.History) == 0 {
		return nil
	}
	return &sp.History[len(sp.History)-1]
}

// AddUsage folds a provider response's consumption into the call metrics.
func (sp *Scratchpad) AddUsage(resp *provider.Response) {
	if resp == nil {
		return
	}
	sp.metrics.Add(types.Metrics{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CostUSD:          resp.CostUSD,
		Model:            resp.Model,
	})
}

// ParamString reads a string step parameter, with a fallback.
func (sp *Scratchpad) ParamString(key, fallback string) string {
	if v, ok := sp.Params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Role supplies the per-capability behavior for the three loop phases.
// Reason produces the round's plan, Act carries it out (usually one
// generation call), and Observe structures the raw result. Done reports
// role-specific early satisfaction; the default posture is to use every
// round, so most roles return false until the final round.
type Role interface {
	Name() string
	Kind() types.ArtifactKind
	Reason(ctx context.Context, sp *Scratchpad) (string, error)
	Act(ctx context.Context, sp *Scratchpad, plan string) (string, error)
	Observe(ctx context.Context, sp *Scratchpad, raw string) (Observation, error)
	Done(sp *Scratchpad) bool
}

// Request carries one capability invocation.
type Request struct {
	Input     types.Artifact
	RunID     string
	Topic     string
	Seed      map[string]string
	Params    map[string]any
	Profile   config.Profile
	MaxRounds int
}

// Agent drives a Role through its bounded reason/act/observe loop.
type Agent struct {
	role Role
	log  *slog.Logger
}

// New binds a role to the loop driver.
func New(role Role, log *slog.Logger) *Agent {
	return &Agent{role: role, log: log}
}

// Role returns the bound role.
func (a *Agent) Role() Role {
	return a.role
}

// Run executes up to req.MaxRounds rounds and returns the last
// observation as the output artifact, with the call's accumulated
// metrics. Provider failures surface as typed errors so the caller can
// tell retryable from fatal; Run itself never retries.
func (a *Agent) Run(ctx context.Context, req Request) (types.Artifact, types.Metrics, error) {
	maxRounds := req.MaxRounds
	if maxRounds < 1 {
		maxRounds = 1
	}

	sp := &Scratchpad{
		Input:     req.Input,
		RunID:     req.RunID,
		Topic:     req.Topic,
		Seed:      req.Seed,
		Params:    req.Params,
		Profile:   req.Profile,
		Stash:     make(map[string]any),
		MaxRounds: maxRounds,
		Log:       a.log.With("capability", a.role.Name()),
	}

	started := time.Now()
	for round := 1; round <= maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return types.Artifact{}, sp.finish(started), err
		}
		sp.Round = round

		plan, err := a.role.Reason(ctx, sp)
		if err != nil {
			return types.Artifact{}, sp.finish(started), a.classify(err)
		}

		raw, err := a.role.Act(ctx, sp, plan)
		if err != nil {
			return types.Artifact{}, sp.finish(started), a.classify(err)
		}

		obs, err := a.role.Observe(ctx, sp, raw)
		if err != nil {
			return types.Artifact{}, sp.finish(started), a.classify(err)
		}
		obs.Round = round
		sp.History = append(sp.History, obs)

		sp.Log.Debug("round finished", "round", round, "max_rounds", maxRounds)

		if a.role.Done(sp) {
			break
		}
	}

	last := sp.Last()
	if last == nil {
		return types.Artifact{}, sp.finish(started), fmt.Errorf("capability %s produced no observation", a.role.Name())
	}

	artifact := types.Artifact{
		Kind: a.role.Kind(),
		Body: last.Output,
		Meta: make(map[string]any, len(last.Meta)+1),
	}
	for k, v := range last.Meta {
		artifact.Meta[k] = v
	}
	artifact.Meta["topic"] = req.Topic

	metrics := sp.finish(started)
	metrics.Score = last.Score

	return artifact, metrics, nil
}

// finish closes out the call metrics.
func (sp *Scratchpad) finish(started time.Time) types.Metrics {
	m := sp.metrics
	m.Duration = time.Since(started)
	m.Rounds = len(sp.History)
	return m
}

// classify wraps provider failures with their retryability so the
// orchestrator's retry policy can match on error codes alone.
func (a *Agent) classify(err error) error {
	var perr *provider.Error
	if !errors.As(err, &perr) {
		return err
	}
	if perr.Retryable {
		return derrors.ProviderTransient(perr.Provider, err)
	}
	return derrors.ProviderPermanent(perr.Provider, err)
}
