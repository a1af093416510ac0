package segment_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/dawvox/internal/segment"
	"github.com/MrWong99/dawvox/pkg/audio"
	vadmock "github.com/MrWong99/dawvox/pkg/provider/vad/mock"
)

const frameDur = 32 * time.Millisecond

func frame(n int) audio.AudioFrame {
	return audio.AudioFrame{
		Data:       make([]byte, 1024),
		SampleRate: 16000,
		Channels:   1,
		Timestamp:  time.Duration(n) * frameDur,
	}
}

var defaultCfg = segment.Config{
	Hangover:      200 * time.Millisecond,
	MaxDuration:   2 * time.Second,
	ListenTimeout: time.Second,
	MinSpeech:     64 * time.Millisecond,
}

// feed runs script through a fresh segmenter and returns every non-Continue
// result with the frame index it occurred on.
func feed(t *testing.T, cfg segment.Config, script string, frames int) ([]segment.Result, []int) {
	t.Helper()
	sess := &vadmock.Session{Events: vadmock.Script(script)}
	s, err := segment.New(sess, cfg)
	if err != nil {
		t.Fatalf("segment.New: %v", err)
	}
	s.Begin(7, 0)

	var (
		results []segment.Result
		at      []int
	)
	for i := range frames {
		r, err := s.Feed(frame(i))
		if err != nil {
			t.Fatalf("Feed(%d): %v", i, err)
		}
		if r.Event != segment.Continue {
			results = append(results, r)
			at = append(at, i)
		}
	}
	return results, at
}

func events(rs []segment.Result) []segment.Event {
	out := make([]segment.Event, len(rs))
	for i, r := range rs {
		out[i] = r.Event
	}
	return out
}

func TestSegmenter_FinalizesOnceAfterHangover(t *testing.T) {
	t.Parallel()

	// 5 silence, 10 speech, then 40 frames of silence (far more than the
	// 200ms hangover).
	script := strings.Repeat(".", 5) + strings.Repeat("S", 10) + strings.Repeat(".", 40)
	rs, at := feed(t, defaultCfg, script, len(script))

	if len(rs) != 2 || rs[0].Event != segment.SpeechStarted || rs[1].Event != segment.Finalized {
		t.Fatalf("events: got %v, want [speech-started finalized]", events(rs))
	}
	u := rs[1].Utterance
	if u.ID != 7 {
		t.Errorf("utterance ID: got %d, want 7", u.ID)
	}
	if u.Reason != audio.EndSilence {
		t.Errorf("reason: got %q, want silence", u.Reason)
	}
	if u.Start != 5*frameDur {
		t.Errorf("start: got %v, want %v", u.Start, 5*frameDur)
	}
	// Last speech frame ends at 15*32ms; hangover of 200ms needs 7 more frames.
	if at[1] != 21 {
		t.Errorf("finalized on frame %d, want 21", at[1])
	}
	if len(u.Frames) != 17 {
		t.Errorf("frames: got %d, want 17", len(u.Frames))
	}
	if u.FinalizedAt.IsZero() {
		t.Error("FinalizedAt not set")
	}
}

func TestSegmenter_PausesShorterThanHangover(t *testing.T) {
	t.Parallel()

	// Two words separated by a 96ms pause form one utterance.
	script := "SSSS...SSSS" + strings.Repeat(".", 20)
	rs, _ := feed(t, defaultCfg, script, len(script))

	var finals int
	for _, r := range rs {
		if r.Event == segment.Finalized {
			finals++
		}
	}
	if finals != 1 {
		t.Fatalf("finalized %d utterances, want 1 (events %v)", finals, events(rs))
	}
}

func TestSegmenter_MaxDuration(t *testing.T) {
	t.Parallel()

	script := strings.Repeat("S", 100)
	rs, at := feed(t, defaultCfg, script, len(script))

	if len(rs) != 2 || rs[1].Event != segment.Finalized {
		t.Fatalf("events: got %v", events(rs))
	}
	if rs[1].Utterance.Reason != audio.EndMaxDuration {
		t.Errorf("reason: got %q, want max-duration", rs[1].Utterance.Reason)
	}
	if d := rs[1].Utterance.Duration(); d < defaultCfg.MaxDuration || d > defaultCfg.MaxDuration+frameDur {
		t.Errorf("duration %v not at cap %v", d, defaultCfg.MaxDuration)
	}
	if at[1] >= 99 {
		t.Errorf("cap not enforced, finalized at frame %d", at[1])
	}
}

func TestSegmenter_ListenTimeout(t *testing.T) {
	t.Parallel()

	script := strings.Repeat(".", 50)
	rs, at := feed(t, defaultCfg, script, len(script))

	if len(rs) != 1 || rs[0].Event != segment.ListenTimeout {
		t.Fatalf("events: got %v, want [listen-timeout]", events(rs))
	}
	// 1s / 32ms = 31.25, so the frame ending at 1024ms (index 31) times out.
	if at[0] != 31 {
		t.Errorf("timed out on frame %d, want 31", at[0])
	}
}

func TestSegmenter_MinSpeechIgnoresBlips(t *testing.T) {
	t.Parallel()

	// Single-frame blips never reach 64ms of continuous speech.
	script := strings.Repeat("S.", 20)
	rs, _ := feed(t, segment.Config{Hangover: 200 * time.Millisecond, MaxDuration: time.Second, MinSpeech: 64 * time.Millisecond}, script, len(script))
	if len(rs) != 0 {
		t.Errorf("blips produced events: %v", events(rs))
	}
}

func TestSegmenter_Cancel(t *testing.T) {
	t.Parallel()

	sess := &vadmock.Session{Events: vadmock.Script("SSSSS")}
	s, err := segment.New(sess, defaultCfg)
	if err != nil {
		t.Fatalf("segment.New: %v", err)
	}
	if s.Cancel() != nil {
		t.Error("Cancel on idle segmenter returned an utterance")
	}

	s.Begin(3, 0)
	for i := range 5 {
		if _, err := s.Feed(frame(i)); err != nil {
			t.Fatal(err)
		}
	}
	u := s.Cancel()
	if u == nil || u.Reason != audio.EndCancelled || u.ID != 3 {
		t.Fatalf("cancelled utterance: %+v", u)
	}
	if s.Active() {
		t.Error("segmenter still active after Cancel")
	}
	if r, _ := s.Feed(frame(6)); r.Event != segment.Continue {
		t.Errorf("frame after cancel produced %v", r.Event)
	}
}

func TestSegmenter_BeginResets(t *testing.T) {
	t.Parallel()

	sess := &vadmock.Session{Events: vadmock.Script("SSSS")}
	s, _ := segment.New(sess, defaultCfg)

	s.Begin(1, 0)
	for i := range 4 {
		s.Feed(frame(i))
	}
	s.Begin(2, 4*frameDur)
	if u := s.Cancel(); u != nil {
		t.Errorf("Begin kept %d frames of the previous utterance", len(u.Frames))
	}
	if sess.ResetCallCount != 2 {
		t.Errorf("vad Reset calls: got %d, want 2", sess.ResetCallCount)
	}
}

func TestSegmenter_FeedsVADOutsideWindow(t *testing.T) {
	t.Parallel()

	sess := &vadmock.Session{Events: vadmock.Script("..SSSS..")}
	s, _ := segment.New(sess, defaultCfg)

	for i := range 8 {
		r, err := s.Feed(frame(i))
		if err != nil {
			t.Fatalf("Feed(%d): %v", i, err)
		}
		if r.Event != segment.Continue || r.Utterance != nil {
			t.Errorf("frame %d outside a window produced %v", i, r.Event)
		}
	}
	if sess.ProcessFrameCalls != 8 {
		t.Errorf("vad saw %d frames, want 8", sess.ProcessFrameCalls)
	}
	if s.Active() {
		t.Error("segmenter opened a window without Begin")
	}
}

func TestSegmenter_Errors(t *testing.T) {
	t.Parallel()

	if _, err := segment.New(nil, defaultCfg); err == nil {
		t.Error("expected error for nil session")
	}
	if _, err := segment.New(&vadmock.Session{}, segment.Config{MaxDuration: time.Second}); err == nil {
		t.Error("expected error for zero hangover")
	}

	boom := errors.New("vad failed")
	s, _ := segment.New(&vadmock.Session{ProcessFrameErr: boom}, defaultCfg)
	s.Begin(1, 0)
	if _, err := s.Feed(frame(0)); !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped %v", err, boom)
	}
}

func TestSegmenter_Flush(t *testing.T) {
	t.Parallel()

	sess := &vadmock.Session{Events: vadmock.Script("..SSSS")}
	s, err := segment.New(sess, defaultCfg)
	if err != nil {
		t.Fatal(err)
	}
	s.Begin(9, 0)
	for i := range 6 {
		if _, err := s.Feed(frame(i)); err != nil {
			t.Fatal(err)
		}
	}
	u := s.Flush()
	if u == nil || u.Reason != audio.EndSilence || u.ID != 9 || len(u.Frames) != 4 {
		t.Fatalf("flushed utterance: %+v", u)
	}
	if s.Active() {
		t.Error("segmenter still active after Flush")
	}

	s.Begin(10, 0)
	if s.Flush() != nil {
		t.Error("Flush without speech returned an utterance")
	}
}
