// Package orchestrator sequences the extractor, the consistency gate,
// and the state manager into one turn-processing entry point.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
	"github.com/louisbranch/narrative-engine/internal/narrative/extractor"
	"github.com/louisbranch/narrative-engine/internal/narrative/gate"
	"github.com/louisbranch/narrative-engine/internal/narrative/manager"
)

// DefaultTurnTimeout is the turn budget §5 specifies absent an explicit
// Config.TurnTimeoutSeconds.
const DefaultTurnTimeout = 30 * time.Second

// ProcessTurnRequest bundles one turn's inputs.
type ProcessTurnRequest struct {
	StoryID        string
	Turn           int
	UserMessage    string
	AssistantDraft string
}

// ProcessTurnResult is the orchestrator's response shape, matching the
// external HTTP contract's body described in §6.
type ProcessTurnResult struct {
	FinalAction         gate.Action
	State               *domain.CanonicalState
	RecentEvents        []domain.Event
	Violations          []gate.Violation
	RewriteInstructions string
	Questions           []string
}

// Orchestrator wires together one turn's extraction, gating, and
// application, enforcing the turn timeout and the detached-commit rule
// of §5.
type Orchestrator struct {
	extractor   *extractor.Extractor
	manager     *manager.Manager
	turnTimeout time.Duration
	logger      *slog.Logger
}

// New builds an Orchestrator. turnTimeout defaults to DefaultTurnTimeout
// when zero (Config.TurnTimeoutSeconds == 0).
func New(ext *extractor.Extractor, mgr *manager.Manager, turnTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if turnTimeout <= 0 {
		turnTimeout = DefaultTurnTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{extractor: ext, manager: mgr, turnTimeout: turnTimeout, logger: logger}
}

// ProcessTurn implements the §5/§6 turn lifecycle: extract candidate
// events under the turn's timeout, gate them, and -- only on PASS or
// AUTO_FIX -- apply and commit them through a detached context so an
// external cancellation arriving once the commit has started cannot
// abort a half-applied turn.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req ProcessTurnRequest) (ProcessTurnResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	state, err := o.manager.GetState(ctx, req.StoryID)
	if err != nil {
		return ProcessTurnResult{}, err
	}

	extracted, err := o.extractor.Extract(ctx, extractor.ExtractRequest{
		StoryID:     req.StoryID,
		Turn:        req.Turn,
		UserMessage: req.UserMessage,
		Draft:       req.AssistantDraft,
		State:       state,
	})
	if err != nil {
		return ProcessTurnResult{}, err
	}

	if extracted.RequiresUserInput {
		return ProcessTurnResult{
			FinalAction: gate.ActionAskUser,
			State:       state,
			Questions:   extracted.OpenQuestions,
		}, nil
	}

	result := gate.Evaluate(gate.Input{
		State:  state,
		Events: extracted.Events,
		Draft:  req.AssistantDraft,
	})

	switch result.Action {
	case gate.ActionRewrite:
		return ProcessTurnResult{
			FinalAction:         gate.ActionRewrite,
			State:               state,
			Violations:          result.Violations,
			RewriteInstructions: rewriteInstructions(result),
		}, nil
	case gate.ActionAskUser:
		return ProcessTurnResult{
			FinalAction: gate.ActionAskUser,
			State:       state,
			Violations:  result.Violations,
			Questions:   result.Questions,
		}, nil
	}

	// PASS or AUTO_FIX: a turn canceled before the commit starts writes no
	// state. Once started, the commit runs through a context detached from
	// the caller's cancellation, per §5's "once apply begins, it runs to
	// completion" rule; it gets a fresh turn-timeout budget of its own
	// rather than the remainder of the turn's original deadline.
	if err := ctx.Err(); err != nil {
		return ProcessTurnResult{}, err
	}
	commitCtx, cancelCommit := context.WithTimeout(context.WithoutCancel(ctx), o.turnTimeout)
	defer cancelCommit()
	newState, err := o.manager.ApplyEvents(commitCtx, req.StoryID, extracted.Events, result.Fixes)
	if err != nil {
		return ProcessTurnResult{}, err
	}

	return ProcessTurnResult{
		FinalAction:  result.Action,
		State:        newState,
		RecentEvents: extracted.Events,
		Violations:   result.Violations,
	}, nil
}

// rewriteInstructions renders a human-readable instruction string from
// a REWRITE result's rule citations (§7's "a rewrite returns the
// offending rule citations and a human-readable instruction string").
func rewriteInstructions(result gate.Result) string {
	instructions := "The draft contradicts established canon and must be revised:"
	for _, reason := range result.Reasons {
		instructions += "\n- " + reason
	}
	return instructions
}
