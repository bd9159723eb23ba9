package watch

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/process"
	"github.com/Harsha-Reddy21/AI-Onboarding/rpc"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

type stubRuns struct{}

func (stubRuns) Get(string) *process.Run      { return nil }
func (stubRuns) GetByKey(string) *process.Run { return nil }

type stringSource string

func (s stringSource) Open(context.Context, agent.Request) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

func TestTimelineWatcher_RoutesByTopic(t *testing.T) {
	w := NewTimelineWatcher(stubRuns{})
	w.Start()
	defer w.Stop()

	bySession, byKey, other := &recordingNotifier{}, &recordingNotifier{}, &recordingNotifier{}
	w.Subscribe(bySession, "s1")
	w.Subscribe(byKey, "video:d1")
	w.Subscribe(other, "s2")

	tl := timeline.New()
	w.OnTimeline(process.Update{SessionID: "s1", Key: "video:d1", Timeline: tl})

	waitFor(t, func() bool { return len(bySession.all()) == 1 && len(byKey.all()) == 1 })
	if len(other.all()) != 0 {
		t.Error("unrelated subscriber notified")
	}

	n := bySession.all()[0]
	if n.Method != "timeline.updated" {
		t.Errorf("Method = %s", n.Method)
	}
	params := n.Params.(rpc.TimelineUpdatedParams)
	if params.SessionID != "s1" || params.Key != "video:d1" {
		t.Errorf("params = %+v", params)
	}
}

func TestTimelineWatcher_CoalescesToLatest(t *testing.T) {
	w := NewTimelineWatcher(stubRuns{})
	sub := &recordingNotifier{}
	w.Subscribe(sub, "s1")

	// queued before the loop runs
	for i := 1; i <= 5; i++ {
		tl := timeline.New()
		tl.Anomalies = i
		w.OnTimeline(process.Update{SessionID: "s1", Key: "k", Timeline: tl})
	}
	w.Start()
	defer w.Stop()

	waitFor(t, func() bool { return len(sub.all()) >= 1 })
	time.Sleep(20 * time.Millisecond)

	got := sub.all()
	if len(got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(got))
	}
	if a := got[0].Params.(rpc.TimelineUpdatedParams).Timeline.Anomalies; a != 5 {
		t.Errorf("delivered revision %d, want latest (5)", a)
	}
}

func TestTimelineWatcher_SubscribeReturnsSnapshot(t *testing.T) {
	store, _ := session.NewFileStore(t.TempDir())
	m := process.NewManager(stringSource("event: status\ndata: {\"message\":\"hi\"}\n\nevent: complete\ndata: {}\n\n"), store, time.Minute)
	defer m.Shutdown()

	run, err := m.Start(context.Background(), agent.Request{Target: agent.TargetVideo, DocumentID: "d1"})
	if err != nil {
		t.Fatal(err)
	}
	<-run.Done()

	w := NewTimelineWatcher(m)
	_, snap := w.Subscribe(&recordingNotifier{}, "video:d1")
	if snap == nil {
		t.Fatal("expected snapshot for known key")
	}
	if snap.Outcome != timeline.OutcomeComplete || len(snap.Steps) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	if _, snap := w.Subscribe(&recordingNotifier{}, "video:unknown"); snap != nil {
		t.Error("unknown topic should have no snapshot")
	}
}

func TestTimelineWatcher_IgnoresWithoutSubscribers(t *testing.T) {
	w := NewTimelineWatcher(stubRuns{})
	w.OnTimeline(process.Update{SessionID: "s1"})
	if len(w.drain()) != 0 {
		t.Error("update queued without subscribers")
	}
}
