package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dudu/biokiosk/internal/overlay"
	"github.com/dudu/biokiosk/internal/pipeline"
)

func TestCountdownFiresOnce(t *testing.T) {
	c := NewCountdown(0)
	if c.Total() != DefaultSeconds {
		t.Fatalf("Total() = %d, want %d", c.Total(), DefaultSeconds)
	}

	fired := 0
	for i := 1; i <= DefaultSeconds+5; i++ {
		if c.Tick() {
			fired++
			if i != DefaultSeconds {
				t.Errorf("fired on tick %d, want %d", i, DefaultSeconds)
			}
		}
		if c.Remaining() < 0 {
			t.Fatalf("Remaining() = %d after tick %d", c.Remaining(), i)
		}
	}
	if fired != 1 {
		t.Errorf("fired %d times, want 1", fired)
	}
	if !c.Done() || c.Remaining() != 0 {
		t.Errorf("Done() = %v, Remaining() = %d", c.Done(), c.Remaining())
	}
}

func TestCountdownConcurrentTicks(t *testing.T) {
	c := NewCountdown(3)
	var fired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Tick() {
				fired.Add(1)
			}
		}()
	}
	wg.Wait()
	if fired.Load() != 1 {
		t.Errorf("fired %d times, want 1", fired.Load())
	}
}

func result(masked bool) *pipeline.Result {
	return &pipeline.Result{
		PNG:    []byte{0x89, 'P', 'N', 'G'},
		Image:  image.NewRGBA(image.Rect(0, 0, 9, 16)),
		Style:  overlay.StyleAviator,
		Masked: masked,
	}
}

func TestArtifactImmutable(t *testing.T) {
	res := result(true)
	a, err := NewArtifact(res, false, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("NewArtifact() error = %v", err)
	}

	res.PNG[0] = 0
	got := a.PNG()
	got[1] = 0
	if again := a.PNG(); !bytes.Equal(again, []byte{0x89, 'P', 'N', 'G'}) {
		t.Errorf("PNG() = %v after callers mutated copies", again)
	}
	if a.Style() != overlay.StyleAviator || !a.Masked() || a.Fallback() {
		t.Errorf("unexpected artifact fields: %s masked=%v fallback=%v", a.Style(), a.Masked(), a.Fallback())
	}
	if a.Size() != 4 {
		t.Errorf("Size() = %d, want 4", a.Size())
	}
}

func TestArtifactRejectsEmpty(t *testing.T) {
	if _, err := NewArtifact(nil, false, time.Now()); err == nil {
		t.Error("NewArtifact(nil) succeeded")
	}
	if _, err := NewArtifact(&pipeline.Result{}, false, time.Now()); err == nil {
		t.Error("NewArtifact(empty) succeeded")
	}
}

type fakeRenderer struct {
	ticks       atomic.Int32
	captures    atomic.Int32
	tickErr     error
	captureErr  error
	snapshotErr error
}

func (r *fakeRenderer) Tick() error {
	r.ticks.Add(1)
	return r.tickErr
}

func (r *fakeRenderer) Capture() (*pipeline.Result, error) {
	r.captures.Add(1)
	if r.captureErr != nil {
		return nil, r.captureErr
	}
	return result(true), nil
}

func (r *fakeRenderer) Snapshot() (*pipeline.Result, error) {
	if r.snapshotErr != nil {
		return nil, r.snapshotErr
	}
	return result(false), nil
}

type recorder struct {
	mu  sync.Mutex
	got []*Artifact
	err error
}

func (c *recorder) Consume(_ context.Context, a *Artifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, a)
	return c.err
}

func fastOptions(seconds int) Options {
	return Options{Seconds: seconds, FPS: 1000, Interval: time.Millisecond}
}

func TestSessionCapturesOnce(t *testing.T) {
	r := &fakeRenderer{}
	c := &recorder{}

	var mu sync.Mutex
	var remaining []int
	opts := fastOptions(3)
	opts.OnTick = func(n int) {
		mu.Lock()
		remaining = append(remaining, n)
		mu.Unlock()
	}

	a, err := NewSession(r, c, opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if a == nil || a.Fallback() || !a.Masked() {
		t.Fatalf("Run() artifact = %+v, want a masked capture", a)
	}
	if n := r.captures.Load(); n != 1 {
		t.Errorf("Capture() called %d times, want 1", n)
	}
	if len(c.got) != 1 || c.got[0] != a {
		t.Errorf("consumer got %d artifacts, want the returned one", len(c.got))
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{2, 1, 0}
	if len(remaining) != len(want) {
		t.Fatalf("OnTick got %v, want %v", remaining, want)
	}
	for i := range want {
		if remaining[i] != want[i] {
			t.Errorf("OnTick got %v, want %v", remaining, want)
			break
		}
	}
}

func TestSessionFallsBackToPreview(t *testing.T) {
	r := &fakeRenderer{captureErr: errors.New("segmenter crashed")}
	c := &recorder{}

	a, err := NewSession(r, c, fastOptions(1)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !a.Fallback() || a.Masked() {
		t.Errorf("artifact fallback=%v masked=%v, want a fallback snapshot", a.Fallback(), a.Masked())
	}
	if len(c.got) != 1 {
		t.Errorf("consumer got %d artifacts, want 1", len(c.got))
	}
}

func TestSessionFailsWithoutFallback(t *testing.T) {
	r := &fakeRenderer{
		captureErr:  errors.New("capture failed"),
		snapshotErr: pipeline.ErrNoFrame,
	}
	c := &recorder{}

	_, err := NewSession(r, c, fastOptions(1)).Run(context.Background())
	if !errors.Is(err, pipeline.ErrNoFrame) {
		t.Errorf("Run() error = %v, want ErrNoFrame", err)
	}
	if len(c.got) != 0 {
		t.Errorf("consumer got %d artifacts, want 0", len(c.got))
	}
}

func TestSessionConsumerError(t *testing.T) {
	sinkErr := errors.New("disk full")
	c := &recorder{err: sinkErr}

	a, err := NewSession(&fakeRenderer{}, c, fastOptions(1)).Run(context.Background())
	if !errors.Is(err, sinkErr) || !errors.Is(err, ErrHandOff) {
		t.Errorf("Run() error = %v, want a hand-off error wrapping the consumer error", err)
	}
	if a == nil {
		t.Error("artifact dropped on consumer error")
	}
}

func TestSessionCancel(t *testing.T) {
	r := &fakeRenderer{}
	c := &recorder{}
	opts := Options{Seconds: 60, FPS: 1000, Interval: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	a, err := NewSession(r, c, opts).Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want DeadlineExceeded", err)
	}
	if a != nil || len(c.got) != 0 || r.captures.Load() != 0 {
		t.Error("cancelled session captured")
	}
	if r.ticks.Load() == 0 {
		t.Error("preview never ticked")
	}
}

func TestSessionStopsOnPersistentTickFailure(t *testing.T) {
	camErr := errors.New("camera unplugged")
	r := &fakeRenderer{tickErr: camErr}
	opts := Options{Seconds: 60, FPS: 10000, Interval: time.Hour}

	_, err := NewSession(r, nil, opts).Run(context.Background())
	if !errors.Is(err, camErr) {
		t.Errorf("Run() error = %v, want the tick error", err)
	}
	if n := r.ticks.Load(); n != maxTickFailures {
		t.Errorf("ticked %d times, want %d", n, maxTickFailures)
	}
}

func TestSessionFailuresAreNotHandOffs(t *testing.T) {
	r := &fakeRenderer{captureErr: errors.New("capture failed"), snapshotErr: pipeline.ErrNoFrame}
	_, err := NewSession(r, ConsumerFunc(func(context.Context, *Artifact) error {
		t.Error("consumer called without a capture")
		return nil
	}), fastOptions(1)).Run(context.Background())
	if err == nil || errors.Is(err, ErrHandOff) {
		t.Errorf("Run() error = %v, want a session failure", err)
	}
}

func TestSessionStatus(t *testing.T) {
	var calls atomic.Int32
	var buf bytes.Buffer
	opts := fastOptions(3)
	opts.Progress = &buf
	opts.Status = func() string {
		calls.Add(1)
		return "T: 20ms"
	}

	if _, err := NewSession(&fakeRenderer{}, nil, opts).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("Status called %d times, want once per countdown step", n)
	}
	if buf.Len() == 0 {
		t.Error("progress bar wrote nothing")
	}
}
