package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/louisbranch/narrative-engine/internal/narrative/domain"
	"github.com/louisbranch/narrative-engine/internal/narrative/extractor"
	"github.com/louisbranch/narrative-engine/internal/narrative/gate"
	"github.com/louisbranch/narrative-engine/internal/narrative/manager"
	"github.com/louisbranch/narrative-engine/internal/narrative/store/memory"
)

type fakeCompleter struct {
	content string
}

func (f *fakeCompleter) Complete(ctx context.Context, req extractor.Request) (extractor.Response, error) {
	return extractor.Response{ToolCallJSON: f.content}, nil
}

func newOrchestrator(t *testing.T, content string) (*Orchestrator, *memory.Store) {
	t.Helper()
	st := memory.New()
	mgr := manager.New(st, nil)
	ext := extractor.New(&fakeCompleter{content: content}, "gpt-4o-mini", 1, nil)
	return New(ext, mgr, time.Second, nil), st
}

func TestProcessTurnPassesAndCommits(t *testing.T) {
	orc, st := newOrchestrator(t, `{"events": [{"type": "TRAVEL", "summary": "Zhang Fei rides to Xuchang.", "payload": {"travel": {"character_id": "zhangfei", "to_location_id": "xuchang"}}, "state_patch": {"entity_updates": {"zhangfei": {"entity_type": "character", "updates": {"location_id": "xuchang"}}}}}]}`)
	ctx := context.Background()

	result, err := orc.ProcessTurn(ctx, ProcessTurnRequest{
		StoryID: "story-1", Turn: 1, UserMessage: "travel", AssistantDraft: "Zhang Fei rides to Xuchang.",
	})
	if err != nil {
		t.Fatalf("process turn: %v", err)
	}
	if result.FinalAction != gate.ActionPass {
		t.Fatalf("expected PASS, got %s (violations: %+v)", result.FinalAction, result.Violations)
	}
	if result.State.Entities.Characters["zhangfei"].LocationID != "xuchang" {
		t.Fatalf("expected committed state to reflect the travel")
	}

	committed, err := st.GetState(ctx, "story-1")
	if err != nil {
		t.Fatalf("get committed state: %v", err)
	}
	if committed.Meta.Turn != 1 {
		t.Fatalf("expected turn 1 to be committed, got %d", committed.Meta.Turn)
	}
}

func TestProcessTurnRewritesOnViolation(t *testing.T) {
	orc, st := newOrchestrator(t, `{"events": [{"type": "OTHER", "summary": "Lu Bu speaks", "payload": {"other": {"note": "x"}}, "who": {"actors": ["lubu"]}, "state_patch": {"entity_updates": {"lubu": {"entity_type": "character", "updates": {}}}}}]}`)
	ctx := context.Background()

	seedState, err := orc.manager.GetState(ctx, "story-1")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	seedState.Entities.Characters["lubu"] = domain.Character{Name: "Lu Bu", Alive: false}
	if err := st.SaveState(ctx, seedState); err != nil {
		t.Fatalf("save seed state: %v", err)
	}

	result, err := orc.ProcessTurn(ctx, ProcessTurnRequest{
		StoryID: "story-1", Turn: 1, UserMessage: "x", AssistantDraft: "Lu Bu speaks up.",
	})
	if err != nil {
		t.Fatalf("process turn: %v", err)
	}
	if result.FinalAction != gate.ActionRewrite {
		t.Fatalf("expected REWRITE for a dead character acting, got %s (violations: %+v)", result.FinalAction, result.Violations)
	}
}

func TestProcessTurnAskUserOnOpenQuestions(t *testing.T) {
	orc, _ := newOrchestrator(t, `{"events": [], "open_questions": ["Who delivered the final blow?"]}`)
	ctx := context.Background()

	result, err := orc.ProcessTurn(ctx, ProcessTurnRequest{
		StoryID: "story-1", Turn: 1, UserMessage: "x", AssistantDraft: "Someone strikes.",
	})
	if err != nil {
		t.Fatalf("process turn: %v", err)
	}
	if result.FinalAction != gate.ActionAskUser || len(result.Questions) != 1 {
		t.Fatalf("expected ASK_USER with one question, got %+v", result)
	}
}

func TestProcessTurnFailsOnCanceledContext(t *testing.T) {
	orc, _ := newOrchestrator(t, `{"events": [{"type": "OTHER", "summary": "x", "payload": {"other": {"note": "x"}}}]}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orc.ProcessTurn(ctx, ProcessTurnRequest{StoryID: "story-1", Turn: 1, UserMessage: "x", AssistantDraft: "x"})
	if err == nil {
		t.Fatalf("expected an error from an already-canceled context")
	}
}
