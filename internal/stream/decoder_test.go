package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/wire"
)

type step struct {
	frame wire.Frame
	err   error
}

type fakeSource struct {
	steps  []step
	i      int
	closed atomic.Int32
}

func (s *fakeSource) Next(ctx context.Context) (wire.Frame, error) {
	if s.i >= len(s.steps) {
		return wire.Frame{}, io.EOF
	}
	st := s.steps[s.i]
	s.i++
	return st.frame, st.err
}

func (s *fakeSource) Close() error {
	s.closed.Add(1)
	return nil
}

// blockingSource never produces a frame; Next returns once the source is
// closed or ctx is done.
type blockingSource struct {
	once    sync.Once
	closeCh chan struct{}
	waiting chan struct{}
	exited  atomic.Int32
}

func newBlockingSource() *blockingSource {
	return &blockingSource{closeCh: make(chan struct{}), waiting: make(chan struct{}, 1)}
}

func (s *blockingSource) Next(ctx context.Context) (wire.Frame, error) {
	defer s.exited.Add(1)
	s.waiting <- struct{}{}
	select {
	case <-s.closeCh:
		return wire.Frame{}, errors.New("use of closed connection")
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	}
}

func (s *blockingSource) Close() error {
	s.once.Do(func() { close(s.closeCh) })
	return nil
}

func (s *blockingSource) isClosed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

func text(s string) step {
	return step{frame: wire.Frame{Kind: wire.FrameTextDelta, Payload: []byte(s)}}
}

func terminator() step {
	return step{frame: wire.Frame{Kind: wire.FrameTerminator}}
}

// parseWords yields one event per word. "remote:<msg>" is a remote error and
// "bad" is a malformed frame.
func parseWords(f wire.Frame) ([]string, error) {
	s := string(f.Payload)
	switch {
	case strings.HasPrefix(s, "remote:"):
		return nil, domain.NewRemoteError(&domain.RemoteError{Message: strings.TrimPrefix(s, "remote:")})
	case s == "bad":
		return nil, domain.NewMalformedError(f.Payload, nil)
	case s == "plain":
		return nil, errors.New("unexpected end of JSON input")
	}
	return strings.Fields(s), nil
}

type element struct {
	event string
	err   error
}

func drain(t *testing.T, d *Decoder[string]) []element {
	t.Helper()
	var out []element
	for i := 0; i < 100; i++ {
		ev, err := d.Next(context.Background())
		if err == io.EOF {
			return out
		}
		out = append(out, element{event: ev, err: err})
	}
	t.Fatal("decoder did not finish")
	return nil
}

func TestDecoder_OrderedEvents(t *testing.T) {
	src := &fakeSource{steps: []step{text("Hello"), text("big wide"), text("world"), terminator(), text("after")}}
	d := NewDecoder(context.Background(), src, parseWords)

	got := drain(t, d)
	want := []string{"Hello", "big", "wide", "world"}
	if len(got) != len(want) {
		t.Fatalf("got %d elements, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].err != nil || got[i].event != w {
			t.Errorf("element %d = %+v, want %q", i, got[i], w)
		}
	}
	if d.State() != StateClosed {
		t.Errorf("State() = %v, want %v", d.State(), StateClosed)
	}
	if src.closed.Load() != 1 {
		t.Errorf("source closed %d times, want 1", src.closed.Load())
	}
	if src.i != 4 {
		t.Errorf("source read %d frames, want 4 (nothing after the terminator)", src.i)
	}
}

func TestDecoder_TruncatedFeed(t *testing.T) {
	src := &fakeSource{steps: []step{text("one"), text("two")}}
	d := NewDecoder(context.Background(), src, parseWords)

	got := drain(t, d)
	if len(got) != 3 {
		t.Fatalf("got %d elements, want 3: %+v", len(got), got)
	}
	if got[0].event != "one" || got[1].event != "two" {
		t.Errorf("prefix = %+v", got[:2])
	}
	if !errors.Is(got[2].err, domain.ErrTruncated) {
		t.Errorf("last element error = %v, want truncated", got[2].err)
	}
	if d.State() != StateErrored {
		t.Errorf("State() = %v, want %v", d.State(), StateErrored)
	}
	if _, err := d.Next(context.Background()); err != io.EOF {
		t.Errorf("Next() after end = %v, want io.EOF", err)
	}
}

func TestDecoder_MalformedFramesContinue(t *testing.T) {
	src := &fakeSource{steps: []step{text("bad"), text("plain"), text("ok"), terminator()}}
	d := NewDecoder(context.Background(), src, parseWords)

	got := drain(t, d)
	if len(got) != 3 {
		t.Fatalf("got %d elements, want 3: %+v", len(got), got)
	}
	if !errors.Is(got[0].err, domain.ErrMalformed) || !errors.Is(got[1].err, domain.ErrMalformed) {
		t.Errorf("errors = %v, %v; want malformed", got[0].err, got[1].err)
	}
	var ce *domain.ClientError
	if errors.As(got[1].err, &ce) && string(ce.Raw) != "plain" {
		t.Errorf("Raw = %q, want frame payload", ce.Raw)
	}
	if got[2].err != nil || got[2].event != "ok" {
		t.Errorf("element 2 = %+v, want ok", got[2])
	}
	if d.State() != StateClosed {
		t.Errorf("State() = %v, want %v", d.State(), StateClosed)
	}
}

func TestDecoder_RemoteErrorTerminates(t *testing.T) {
	t.Run("first frame", func(t *testing.T) {
		src := &fakeSource{steps: []step{text("remote:rate limited"), text("never"), terminator()}}
		d := NewDecoder(context.Background(), src, parseWords)

		got := drain(t, d)
		if len(got) != 1 {
			t.Fatalf("got %d elements, want 1: %+v", len(got), got)
		}
		var ce *domain.ClientError
		if !errors.As(got[0].err, &ce) || ce.Kind != domain.KindRemote {
			t.Fatalf("error = %v, want remote", got[0].err)
		}
		if ce.Remote.Message != "rate limited" {
			t.Errorf("Message = %q, want %q", ce.Remote.Message, "rate limited")
		}
		if src.i != 1 {
			t.Errorf("source read %d frames, want 1", src.i)
		}
	})

	t.Run("mid stream", func(t *testing.T) {
		src := &fakeSource{steps: []step{text("a b"), text("remote:overloaded"), text("never")}}
		d := NewDecoder(context.Background(), src, parseWords)

		got := drain(t, d)
		if len(got) != 3 {
			t.Fatalf("got %d elements, want 3: %+v", len(got), got)
		}
		if got[0].event != "a" || got[1].event != "b" {
			t.Errorf("prefix = %+v", got[:2])
		}
		if !errors.Is(got[2].err, domain.ErrRemote) {
			t.Errorf("last error = %v, want remote", got[2].err)
		}
		if d.State() != StateErrored {
			t.Errorf("State() = %v, want %v", d.State(), StateErrored)
		}
	})
}

func TestDecoder_SourceErrors(t *testing.T) {
	src := &fakeSource{steps: []step{
		{err: domain.NewMalformedError([]byte("\x00"), nil)},
		text("x"),
		{err: domain.NewTransportError("read stream", errors.New("connection reset"))},
		text("never"),
	}}
	d := NewDecoder(context.Background(), src, parseWords)

	got := drain(t, d)
	if len(got) != 3 {
		t.Fatalf("got %d elements, want 3: %+v", len(got), got)
	}
	if !errors.Is(got[0].err, domain.ErrMalformed) {
		t.Errorf("element 0 = %v, want malformed", got[0].err)
	}
	if got[1].event != "x" {
		t.Errorf("element 1 = %+v, want x", got[1])
	}
	if !errors.Is(got[2].err, domain.ErrTransport) {
		t.Errorf("element 2 = %v, want transport", got[2].err)
	}
}

func TestDecoder_CloseUnblocksNext(t *testing.T) {
	src := newBlockingSource()
	d := NewDecoder(context.Background(), src, parseWords)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := d.Next(ctx)
		done <- err
	}()

	<-src.waiting
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("Next() error = %v, want io.EOF", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Next() did not return after Close")
	}
	if !src.isClosed() {
		t.Error("source not closed")
	}
	if d.State() != StateClosed {
		t.Errorf("State() = %v, want %v", d.State(), StateClosed)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDecoder_CloseEndsSourceRead(t *testing.T) {
	src := newBlockingSource()
	d := NewDecoder(context.Background(), src, parseWords)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := d.Next(ctx)
		done <- err
	}()

	<-src.waiting
	d.Close()
	<-done

	deadline := time.Now().Add(5 * time.Second)
	for src.exited.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("source read still pending after Close")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDecoder_ContextCancel(t *testing.T) {
	src := newBlockingSource()
	d := NewDecoder(context.Background(), src, parseWords)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := d.Next(ctx)
		done <- err
	}()

	<-src.waiting
	cancel()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Next() did not return after cancel")
	}
	if !errors.Is(err, domain.ErrTransport) || !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want transport wrapping context.Canceled", err)
	}
	if !src.isClosed() {
		t.Error("source not closed")
	}
	if _, err := d.Next(context.Background()); err != io.EOF {
		t.Errorf("Next() after cancel = %v, want io.EOF", err)
	}
}

func TestDecoder_CloseDropsPendingEvents(t *testing.T) {
	src := &fakeSource{steps: []step{text("a b c"), terminator()}}
	d := NewDecoder(context.Background(), src, parseWords)

	ev, err := d.Next(context.Background())
	if err != nil || ev != "a" {
		t.Fatalf("Next() = %q, %v", ev, err)
	}
	d.Close()
	if _, err := d.Next(context.Background()); err != io.EOF {
		t.Errorf("Next() after Close = %v, want io.EOF", err)
	}
}

func TestDecoder_All(t *testing.T) {
	src := &fakeSource{steps: []step{text("a b"), text("bad"), text("c"), terminator()}}
	d := NewDecoder(context.Background(), src, parseWords)

	var (
		events []string
		errs   int
	)
	for ev, err := range d.All(context.Background()) {
		if err != nil {
			errs++
			continue
		}
		events = append(events, ev)
	}
	if strings.Join(events, ",") != "a,b,c" || errs != 1 {
		t.Errorf("events = %v, errs = %d", events, errs)
	}
}

func TestDecoder_AllBreakCloses(t *testing.T) {
	src := &fakeSource{steps: []step{text("a b c"), text("d"), terminator()}}
	d := NewDecoder(context.Background(), src, parseWords)

	for ev := range d.All(context.Background()) {
		if ev == "b" {
			break
		}
	}
	if d.State() != StateClosed {
		t.Errorf("State() = %v, want %v", d.State(), StateClosed)
	}
	if src.closed.Load() != 1 {
		t.Errorf("source closed %d times, want 1", src.closed.Load())
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	started int
	frames  map[wire.FrameKind]int
	fails   map[domain.ErrorKind]int
	ended   []State
}

func (o *recordingObserver) StreamStarted(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) FrameReceived(_ string, kind wire.FrameKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames[kind]++
}

func (o *recordingObserver) DecodeFailed(_ string, kind domain.ErrorKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fails[kind]++
}

func (o *recordingObserver) StreamEnded(_ string, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, state)
}

func TestDecoder_Observer(t *testing.T) {
	obs := &recordingObserver{frames: map[wire.FrameKind]int{}, fails: map[domain.ErrorKind]int{}}
	src := &fakeSource{steps: []step{text("a"), text("bad"), text("b")}}
	d := NewDecoder(context.Background(), src, parseWords, WithName("test"), WithObserver(obs))

	drain(t, d)
	d.Close()

	if obs.started != 1 {
		t.Errorf("started = %d, want 1", obs.started)
	}
	if obs.frames[wire.FrameTextDelta] != 3 {
		t.Errorf("text frames = %d, want 3", obs.frames[wire.FrameTextDelta])
	}
	if obs.fails[domain.KindMalformed] != 1 || obs.fails[domain.KindTruncated] != 1 {
		t.Errorf("fails = %v", obs.fails)
	}
	if len(obs.ended) != 1 || obs.ended[0] != StateErrored {
		t.Errorf("ended = %v, want [errored]", obs.ended)
	}
}
