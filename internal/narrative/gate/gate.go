// Package gate implements the Consistency Gate: a pure function that
// projects a turn's candidate events onto the current state and decides
// whether the turn may PASS, needs an AUTO_FIX, must be REWRITE, or
// requires ASK_USER clarification.
package gate

import (
	"fmt"

	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
)

// Severity classifies a Violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is one rule's finding against a candidate turn.
type Violation struct {
	RuleID       string
	Severity     Severity
	Fixable      bool
	Message      string
	EntityID     string
	SuggestedFix *domain.StatePatch
	// Ambiguity marks an R1/R8 violation as a genuine fork in canon
	// rather than a simple mistake, routing the decision to ASK_USER
	// instead of REWRITE.
	Ambiguity bool
}

// Action is the gate's disposition for a turn.
type Action string

const (
	ActionPass    Action = "PASS"
	ActionAutoFix Action = "AUTO_FIX"
	ActionRewrite Action = "REWRITE"
	ActionAskUser Action = "ASK_USER"
)

// Result is the gate's full verdict.
type Result struct {
	Action     Action
	Violations []Violation
	Fixes      *domain.StatePatch
	Questions  []string
	Reasons    []string
}

// Input bundles everything one gate evaluation needs.
type Input struct {
	State  *domain.CanonicalState
	Events []domain.Event
	Draft  string
}

// Evaluate runs the ten rules against (state, projected state, events,
// draft) and applies the §4.3 decision function. It never mutates state
// and never returns an error: rule-evaluation failures become `internal`
// violations that force REWRITE.
func Evaluate(input Input) Result {
	projected, selfHeals, foldErrs := project(input.State, input.Events)

	var violations []Violation
	for _, rule := range rules {
		violations = append(violations, rule(input.State, projected, input.Events, input.Draft)...)
	}
	for _, w := range selfHeals {
		violations = append(violations, Violation{RuleID: "internal", Severity: SeverityWarning, Fixable: false, Message: w})
	}
	for _, e := range foldErrs {
		violations = append(violations, Violation{RuleID: "internal", Severity: SeverityError, Fixable: false, Message: e})
	}

	return determineAction(violations)
}

// project folds every candidate event's state_patch into a copy of
// state, in event order -- mirroring the State Manager's Apply fold so a
// turn that PASSes the gate applies identically for real (§4.4's
// "patch application order" note). Genuine Apply errors are returned
// separately from benign self-heal notices: §4.3's Errors text requires
// the former to force REWRITE, while the latter become non-fixable
// warnings, which never force REWRITE but keep a turn from AUTO_FIX
// (warnings that include one resolve to PASS with no fix patch).
func project(state *domain.CanonicalState, events []domain.Event) (projected *domain.CanonicalState, selfHeals []string, foldErrs []string) {
	projected = state.Clone()
	for _, evt := range events {
		w, err := domain.Apply(projected, evt.StatePatch)
		if err != nil {
			foldErrs = append(foldErrs, fmt.Sprintf("internal: folding event %s: %v", evt.EventID, err))
			continue
		}
		selfHeals = append(selfHeals, w...)
	}
	return projected, selfHeals, foldErrs
}

// determineAction implements _determine_action from §4.3.
func determineAction(violations []Violation) Result {
	var errs, warns []Violation
	for _, v := range violations {
		switch v.Severity {
		case SeverityError:
			errs = append(errs, v)
		default:
			warns = append(warns, v)
		}
	}

	if len(errs) > 0 {
		if allAmbiguousR1R8(errs) {
			return Result{
				Action:     ActionAskUser,
				Violations: violations,
				Questions:  clarificationQuestions(errs),
				Reasons:    citations(errs),
			}
		}
		return Result{
			Action:     ActionRewrite,
			Violations: violations,
			Reasons:    citations(errs),
		}
	}

	if len(warns) > 0 && allFixable(warns) {
		return Result{
			Action:     ActionAutoFix,
			Violations: violations,
			Fixes:      mergeFixes(warns),
			Reasons:    citations(warns),
		}
	}

	return Result{Action: ActionPass, Violations: violations}
}

func allAmbiguousR1R8(errs []Violation) bool {
	for _, v := range errs {
		if (v.RuleID != "RULE_R1" && v.RuleID != "RULE_R8") || !v.Ambiguity {
			return false
		}
	}
	return true
}

func allFixable(warns []Violation) bool {
	for _, v := range warns {
		if !v.Fixable {
			return false
		}
	}
	return true
}

func citations(violations []Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Message)
	}
	return out
}

// mergeFixes composes each fixable violation's suggested fix into one
// patch, per §4.3's AUTO_FIX branch.
func mergeFixes(warns []Violation) *domain.StatePatch {
	merged := domain.StatePatch{EntityUpdates: map[string]domain.EntityUpdate{}}
	for _, v := range warns {
		if v.SuggestedFix == nil {
			continue
		}
		for id, upd := range v.SuggestedFix.EntityUpdates {
			existing, ok := merged.EntityUpdates[id]
			if !ok {
				merged.EntityUpdates[id] = upd
				continue
			}
			for k, val := range upd.Updates {
				existing.Updates[k] = val
			}
			merged.EntityUpdates[id] = existing
		}
	}
	return &merged
}

// clarificationQuestions renders one question per ambiguous error. Each
// Violation.Message was already rendered through the i18n catalog at the
// point the rule fired (§4.3's "Clarification generation" reuses the
// same per-rule templates as citations, not a second template set).
func clarificationQuestions(errs []Violation) []string {
	out := make([]string, 0, len(errs))
	for _, v := range errs {
		out = append(out, v.Message)
	}
	return out
}
