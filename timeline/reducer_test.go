package timeline

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func status(msg string) agent.Frame {
	return agent.NewFrame(agent.StatusPayload{Message: msg})
}

func call(tool, id, args string) agent.Frame {
	return agent.NewFrame(agent.ToolCallPayload{Tool: tool, ID: id, Args: json.RawMessage(args)})
}

func result(tool, id, summary string) agent.Frame {
	return agent.NewFrame(agent.ToolResultPayload{Tool: tool, ID: id, Summary: summary, Output: json.RawMessage(`{"ok":true}`)})
}

func thinking(text string) agent.Frame {
	return agent.NewFrame(agent.DeltaPayload{Label: agent.EventTypeThinking, Text: text})
}

func text(t string) agent.Frame {
	return agent.NewFrame(agent.DeltaPayload{Label: agent.EventTypeText, Text: t})
}

func complete() agent.Frame {
	return agent.NewFrame(agent.CompletePayload{Document: &agent.Document{ID: "doc-1", Title: "Overview"}})
}

func failure(msg string) agent.Frame {
	return agent.NewFrame(agent.ErrorPayload{Message: msg})
}

func fold(frames ...agent.Frame) Timeline {
	return Fold(Config{NewID: seqIDs()}, frames)
}

func TestReduce_EndToEnd(t *testing.T) {
	tl := fold(
		status("Starting…"),
		call("listTree", "1", `{"path":"."}`),
		result("listTree", "1", "12 items"),
		call("readFile", "2", `{"path":"README.md"}`),
		complete(),
	)

	if got := tl.Count(KindThinking); got != 1 {
		t.Errorf("thinking steps = %d, want 1", got)
	}
	actions := tl.Filter(OfKind(KindAction))
	if len(actions) != 2 {
		t.Fatalf("action steps = %d, want 2", len(actions))
	}
	for _, a := range actions {
		if a.Status != StatusCompleted {
			t.Errorf("action %s status = %s, want completed", a.ActionName, a.Status)
		}
	}
	if actions[0].Summary != "12 items" {
		t.Errorf("listTree summary = %q", actions[0].Summary)
	}
	if string(actions[1].Input) != `{"path":"README.md"}` {
		t.Errorf("readFile input = %s", actions[1].Input)
	}
	if actions[1].Summary != "" {
		t.Errorf("swept step should have no summary, got %q", actions[1].Summary)
	}
	if tl.Outcome != OutcomeComplete {
		t.Errorf("Outcome = %s, want complete", tl.Outcome)
	}
	if tl.Artifact == nil || tl.Artifact.Document == nil || tl.Artifact.Document.ID != "doc-1" {
		t.Errorf("Artifact = %+v", tl.Artifact)
	}
}

func TestReduce_ActionCountMatchesCalls(t *testing.T) {
	frames := []agent.Frame{
		status("a"),
		call("x", "1", `{}`),
		thinking("considering"),
		call("x", "", `{}`),
		result("x", "1", "done"),
		call("y", "3", `{}`),
		text("answer"),
		result("y", "nope", "dangling"),
		call("z", "", `{}`),
	}

	tl := fold(frames...)
	calls := 0
	for _, f := range frames {
		if f.Type == agent.EventTypeToolCall {
			calls++
		}
	}
	if got := tl.Count(KindAction); got != calls {
		t.Errorf("action steps = %d, want %d", got, calls)
	}
}

func TestReduce_SummaryMatchesResolvingResult(t *testing.T) {
	tl := fold(
		call("readFile", "a", `{}`),
		call("readFile", "b", `{}`),
		call("grep", "c", `{}`),
		result("grep", "c", "3 matches"),
		result("readFile", "a", "10 lines"),
		result("readFile", "b", "20 lines"),
	)

	want := map[string]string{"a": "10 lines", "b": "20 lines", "c": "3 matches"}
	for _, s := range tl.Filter(OfKind(KindAction)) {
		if s.Status != StatusCompleted {
			t.Errorf("step %s status = %s", s.CorrelationKey, s.Status)
		}
		if s.Summary != want[s.CorrelationKey] {
			t.Errorf("step %s summary = %q, want %q", s.CorrelationKey, s.Summary, want[s.CorrelationKey])
		}
		if string(s.Detail) != `{"ok":true}` {
			t.Errorf("step %s detail = %s", s.CorrelationKey, s.Detail)
		}
	}
}

func TestReduce_CompleteSweepsOpenSteps(t *testing.T) {
	tl := fold(
		status("working"),
		call("a", "1", `{}`),
		call("b", "2", `{}`),
		text("partial"),
		complete(),
	)

	for _, s := range tl.Steps {
		if s.Status.IsOpen() {
			t.Errorf("step %s (%s) still %s after complete", s.ID, s.Kind, s.Status)
		}
	}
}

func TestReduce_ErrorSweepsOpenSteps(t *testing.T) {
	tl := fold(
		call("a", "1", `{}`),
		result("a", "1", "ok"),
		call("b", "2", `{}`),
		status("still going"),
		failure("model overloaded"),
	)

	for _, s := range tl.Steps {
		if s.CorrelationKey == "1" {
			if s.Status != StatusCompleted {
				t.Errorf("resolved step status = %s, want completed", s.Status)
			}
			continue
		}
		if s.Status != StatusError {
			t.Errorf("step %s (%s) status = %s, want error", s.ID, s.Kind, s.Status)
		}
	}
	if tl.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %s, want failed", tl.Outcome)
	}
	if tl.FailureReason != "model overloaded" {
		t.Errorf("FailureReason = %q", tl.FailureReason)
	}
}

func TestReduce_AmbiguousSameNamedCalls(t *testing.T) {
	frames := []agent.Frame{
		call("x", "1", `{"n":"A"}`),
		call("x", "2", `{"n":"B"}`),
		result("x", "1", "from A"),
	}

	tests := []struct {
		strategy  Strategy
		wantA     Status
		wantB     Status
		summaryOn string
	}{
		{ByID, StatusCompleted, StatusRunning, "1"},
		// the name rule picks the newest running step, which is the wrong one
		{ByName, StatusRunning, StatusCompleted, "2"},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			tl := Fold(Config{Correlation: tt.strategy, NewID: seqIDs()}, frames)
			a, b := tl.Steps[0], tl.Steps[1]
			if a.Status != tt.wantA || b.Status != tt.wantB {
				t.Errorf("A=%s B=%s, want A=%s B=%s", a.Status, b.Status, tt.wantA, tt.wantB)
			}
			for _, s := range tl.Steps {
				if s.Summary != "" && s.CorrelationKey != tt.summaryOn {
					t.Errorf("summary landed on step %s", s.CorrelationKey)
				}
			}
		})
	}
}

func TestReduce_AccumulationModes(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeReplace, "Reading src/"},
		{ModeAppend, "ExploringReading src/"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			tl := Fold(Config{Mode: tt.mode, NewID: seqIDs()}, []agent.Frame{status("Exploring"), status("Reading src/")})
			if len(tl.Steps) != 1 {
				t.Fatalf("steps = %d, want 1", len(tl.Steps))
			}
			s := tl.Steps[0]
			if s.Kind != KindThinking || s.Status != StatusRunning {
				t.Errorf("step = %+v", s)
			}
			if s.Text != tt.want {
				t.Errorf("Text = %q, want %q", s.Text, tt.want)
			}
		})
	}
}

func TestReduce_ThinkingDeltasAlwaysAppend(t *testing.T) {
	tl := Fold(Config{Mode: ModeReplace, NewID: seqIDs()}, []agent.Frame{thinking("Let me "), thinking("look.")})
	if len(tl.Steps) != 1 || tl.Steps[0].Text != "Let me look." {
		t.Errorf("steps = %+v", tl.Steps)
	}
}

func TestReduce_OneLiveThinkingStep(t *testing.T) {
	tl := fold(
		status("Exploring"),
		call("listTree", "1", `{}`),
		status("Reading"),
	)

	thinkingSteps := tl.Filter(OfKind(KindThinking))
	if len(thinkingSteps) != 2 {
		t.Fatalf("thinking steps = %d, want 2", len(thinkingSteps))
	}
	if thinkingSteps[0].Status != StatusCompleted || thinkingSteps[0].Text != "Exploring" {
		t.Errorf("first thinking step = %+v, want frozen", thinkingSteps[0])
	}
	if thinkingSteps[1].Status != StatusRunning || thinkingSteps[1].Text != "Reading" {
		t.Errorf("second thinking step = %+v, want live", thinkingSteps[1])
	}
	if i, ok := tl.Live(KindThinking); !ok || tl.Steps[i].ID != thinkingSteps[1].ID {
		t.Errorf("Live = %d, %v", i, ok)
	}
}

func TestReduce_Narrative(t *testing.T) {
	tl := fold(
		status("thinking"),
		text("Hello"),
		text(", world"),
		call("search", "1", `{}`),
		text("!"),
	)

	narr := tl.Filter(OfKind(KindNarrative))
	if len(narr) != 2 {
		t.Fatalf("narrative steps = %d, want 2", len(narr))
	}
	if narr[0].Text != "Hello, world" || narr[0].Status != StatusCompleted {
		t.Errorf("first narrative = %+v", narr[0])
	}
	if narr[1].Text != "!" {
		t.Errorf("second narrative = %+v", narr[1])
	}
	if tl.Text != "Hello, world!" {
		t.Errorf("Text = %q", tl.Text)
	}
	if tl.Steps[0].Status != StatusCompleted {
		t.Errorf("thinking step should be frozen by narrative, got %s", tl.Steps[0].Status)
	}
}

func TestReduce_LocalCorrelationKey(t *testing.T) {
	tl := fold(call("readFile", "", `{}`))
	s := tl.Steps[0]
	if !s.LocalKey || s.CorrelationKey == "" {
		t.Fatalf("step = %+v, want local key", s)
	}

	// results without an id never bind under id correlation
	tl = NewReducer(Config{NewID: seqIDs()}).Reduce(tl, result("readFile", "", "done"))
	if tl.Steps[0].Status != StatusRunning {
		t.Errorf("status = %s, want running", tl.Steps[0].Status)
	}
	if tl.Anomalies != 1 {
		t.Errorf("Anomalies = %d, want 1", tl.Anomalies)
	}
}

func TestReduce_DanglingResultDropped(t *testing.T) {
	before := fold(call("a", "1", `{}`))
	after := NewReducer(Config{}).Reduce(before, result("a", "999", "lost"))

	if len(after.Steps) != 1 || after.Steps[0].Status != StatusRunning || after.Steps[0].Summary != "" {
		t.Errorf("steps = %+v", after.Steps)
	}
	if after.Anomalies != 1 {
		t.Errorf("Anomalies = %d, want 1", after.Anomalies)
	}
}

func TestReduce_ResultWithError(t *testing.T) {
	tl := fold(
		call("readFile", "1", `{}`),
		agent.NewFrame(agent.ToolResultPayload{Tool: "readFile", ID: "1", Error: "permission denied"}),
	)
	s := tl.Steps[0]
	if s.Status != StatusError || s.Summary != "permission denied" {
		t.Errorf("step = %+v", s)
	}
	if s.Detail != nil {
		t.Errorf("Detail = %s, want absent", s.Detail)
	}
}

func TestReduce_FramesAfterTerminalIgnored(t *testing.T) {
	tests := []struct {
		name     string
		terminal agent.Frame
		want     Outcome
	}{
		{"complete", complete(), OutcomeComplete},
		{"error", failure("boom"), OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := fold(call("a", "1", `{}`), tt.terminal)
			after := fold(call("a", "1", `{}`), tt.terminal, call("b", "2", `{}`), status("late"), complete())

			if len(after.Steps) != len(done.Steps) {
				t.Errorf("steps = %d, want %d", len(after.Steps), len(done.Steps))
			}
			if after.Outcome != tt.want {
				t.Errorf("Outcome = %s, want %s", after.Outcome, tt.want)
			}
			if after.Anomalies != 3 {
				t.Errorf("Anomalies = %d, want 3", after.Anomalies)
			}
		})
	}
}

func TestReduce_SessionSideChannel(t *testing.T) {
	tl := fold(agent.NewFrame(agent.SessionPayload{SessionID: "chat-7"}))
	if tl.SessionID != "chat-7" {
		t.Errorf("SessionID = %q", tl.SessionID)
	}
	if len(tl.Steps) != 0 {
		t.Errorf("session frame created %d steps", len(tl.Steps))
	}
}

func TestReduce_VideoNotes(t *testing.T) {
	half := 0.5
	tl := fold(
		agent.NewFrame(agent.StoryboardPayload{Slides: 4}),
		agent.NewFrame(agent.SlidePayload{Label: agent.EventTypeSlideStart, Index: 1, Total: 4, Title: "Intro"}),
		agent.NewFrame(agent.SlidePayload{Label: agent.EventTypeSlideComplete, Index: 1, Total: 4}),
		agent.NewFrame(agent.ProgressPayload{Ratio: &half}),
	)

	if tl.Count(KindAction) != 0 {
		t.Error("video notes must not create action steps")
	}
	if len(tl.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(tl.Steps))
	}
	if tl.Steps[0].Text != "Rendering 50%" {
		t.Errorf("Text = %q", tl.Steps[0].Text)
	}
	if tl.Progress != 0.5 {
		t.Errorf("Progress = %v, want 0.5", tl.Progress)
	}
}

func TestReduce_UnknownLabel(t *testing.T) {
	tl := fold(agent.Frame{Type: "heartbeat", Payload: agent.UnknownPayload{Label: "heartbeat"}})
	if len(tl.Steps) != 0 || tl.Anomalies != 1 {
		t.Errorf("timeline = %+v", tl)
	}
}

func TestReduce_LifecycleMarkers(t *testing.T) {
	tl := Fold(Config{NewID: seqIDs(), LifecycleMarkers: true}, []agent.Frame{call("a", "1", `{}`), failure("boom")})
	last := tl.Steps[len(tl.Steps)-1]
	if last.Kind != KindLifecycle || last.Status != StatusError || last.Text != "boom" {
		t.Errorf("last step = %+v", last)
	}
}

func TestReduce_DoesNotMutatePreviousTimeline(t *testing.T) {
	r := NewReducer(Config{NewID: seqIDs()})
	t0 := r.Reduce(New(), status("Exploring"))
	t1 := r.Reduce(t0, status("Reading"))
	t2 := r.Reduce(t1, call("a", "1", `{}`))
	t3 := r.Reduce(t2, result("a", "1", "ok"))
	_ = r.Reduce(t3, complete())

	if t0.Steps[0].Text != "Exploring" || t0.Steps[0].Status != StatusRunning {
		t.Errorf("t0 mutated: %+v", t0.Steps[0])
	}
	if t1.Steps[0].Text != "Reading" || t1.Steps[0].Status != StatusRunning {
		t.Errorf("t1 mutated: %+v", t1.Steps[0])
	}
	if t2.Steps[1].Status != StatusRunning || t2.Steps[1].Summary != "" {
		t.Errorf("t2 mutated: %+v", t2.Steps[1])
	}
	if t3.Outcome != OutcomeRunning {
		t.Errorf("t3 outcome mutated: %s", t3.Outcome)
	}
}

func TestReduce_UniqueIDsAndSeq(t *testing.T) {
	tl := Fold(Config{}, []agent.Frame{
		status("a"), call("x", "", `{}`), call("x", "", `{}`), text("b"), call("y", "1", `{}`),
	})

	seen := make(map[string]bool)
	for i, s := range tl.Steps {
		if seen[s.ID] {
			t.Errorf("duplicate id %s", s.ID)
		}
		seen[s.ID] = true
		if s.Seq != uint64(i+1) {
			t.Errorf("step %d Seq = %d", i, s.Seq)
		}
	}
}

func TestFold_Deterministic(t *testing.T) {
	frames := []agent.Frame{status("a"), call("x", "1", `{}`), result("x", "1", "ok"), text("done"), complete()}
	a := Fold(Config{NewID: seqIDs()}, frames)
	b := Fold(Config{NewID: seqIDs()}, frames)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Errorf("replay differs:\n%s\n%s", ja, jb)
	}
}

func TestTimeline_Finish(t *testing.T) {
	running := fold(call("a", "1", `{}`))
	if got := running.Finish(OutcomeIncomplete); got.Outcome != OutcomeIncomplete || got.Steps[0].Status != StatusRunning {
		t.Errorf("Finish(incomplete) = %+v", got)
	}

	done := fold(complete())
	if got := done.Finish(OutcomeCancelled); got.Outcome != OutcomeComplete {
		t.Errorf("Finish on terminal timeline changed outcome to %s", got.Outcome)
	}
}

func TestParseModeAndStrategy(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeReplace {
		t.Errorf("ParseMode(\"\") = %s, %v", m, err)
	}
	if _, err := ParseMode("merge"); err == nil {
		t.Error("ParseMode(merge) should fail")
	}
	if s, err := ParseStrategy("name"); err != nil || s != ByName {
		t.Errorf("ParseStrategy(name) = %s, %v", s, err)
	}
	if _, err := ParseStrategy("guess"); err == nil {
		t.Error("ParseStrategy(guess) should fail")
	}
}
