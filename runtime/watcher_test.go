package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aschepis/flyercal/agent"
	"github.com/rs/zerolog"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	results map[string]*agent.Result
	errs    map[string]error
	ran     chan string
}

func (f *fakeRunner) Run(ctx context.Context, image string, maxSteps int, force bool) (*agent.Result, error) {
	name := filepath.Base(image)
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.ran != nil {
		select {
		case f.ran <- name:
		default:
		}
	}
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	if r, ok := f.results[name]; ok {
		return r, nil
	}
	return &agent.Result{Outcome: agent.OutcomeNoEvent}, nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWatcher_Scan(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	if err := os.MkdirAll(out, 0o750); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "fiesta.png"), "img")
	writeFile(t, filepath.Join(dir, "concert.JPG"), "img")
	writeFile(t, filepath.Join(dir, "blank.webp"), "img")
	writeFile(t, filepath.Join(dir, "done.png"), "img")
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a flyer")
	writeFile(t, filepath.Join(out, "done.ics"), "BEGIN:VCALENDAR\nEND:VCALENDAR")

	runner := &fakeRunner{results: map[string]*agent.Result{
		"fiesta.png":  {Calendar: "BEGIN:VCALENDAR\nSUMMARY:Fiesta\nEND:VCALENDAR", Event: "Fiesta", Outcome: agent.OutcomeFinished},
		"concert.JPG": {Calendar: "BEGIN:VCALENDAR\nSUMMARY:Concert\nEND:VCALENDAR", Event: "Concert", Outcome: agent.OutcomeFinished},
	}}
	w, err := NewWatcher(runner, WatcherConfig{Dir: dir, OutDir: out, Schedule: "1m"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	written, err := w.Scan(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if written != 2 {
		t.Errorf("Expected 2 calendars written, got %d", written)
	}
	if want := []string{"blank.webp", "concert.JPG", "fiesta.png"}; !equal(runner.Calls(), want) {
		t.Errorf("Expected calls %v, got %v", want, runner.Calls())
	}

	data, err := os.ReadFile(filepath.Join(out, "fiesta.ics"))
	if err != nil {
		t.Fatalf("Expected fiesta.ics, got %v", err)
	}
	if string(data) != "BEGIN:VCALENDAR\nSUMMARY:Fiesta\nEND:VCALENDAR" {
		t.Errorf("Unexpected calendar %q", data)
	}
	if _, err := os.Stat(filepath.Join(out, "blank.ics")); !os.IsNotExist(err) {
		t.Error("Expected no calendar for a flyer without an event")
	}

	// Nothing new on the second pass.
	written, err = w.Scan(context.Background())
	if err != nil || written != 0 {
		t.Errorf("Expected an empty second scan, got %d, %v", written, err)
	}
	if len(runner.Calls()) != 3 {
		t.Errorf("Expected no further runs, got %v", runner.Calls())
	}

	// A modified flyer is picked up again.
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "blank.webp"), later, later); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Scan(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(runner.Calls()) != 4 {
		t.Errorf("Expected the modified flyer to be rerun, got %v", runner.Calls())
	}
}

func TestWatcher_ScanContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), "img")
	writeFile(t, filepath.Join(dir, "b.png"), "img")

	runner := &fakeRunner{
		errs: map[string]error{"a.png": errors.New("boom")},
		results: map[string]*agent.Result{
			"b.png": {Calendar: "BEGIN:VCALENDAR\nEND:VCALENDAR", Outcome: agent.OutcomeFinished},
		},
	}
	w, err := NewWatcher(runner, WatcherConfig{Dir: dir, Schedule: "1m"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	written, err := w.Scan(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if written != 1 {
		t.Errorf("Expected 1 calendar written, got %d", written)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.ics")); err != nil {
		t.Errorf("Expected b.ics next to the flyer, got %v", err)
	}
}

func TestWatcher_ScanMissingDir(t *testing.T) {
	w, err := NewWatcher(&fakeRunner{}, WatcherConfig{Dir: filepath.Join(t.TempDir(), "missing"), Schedule: "1m"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := w.Scan(context.Background()); err == nil {
		t.Error("Expected an error for a missing inbox")
	}
}

func TestNewWatcher_Validation(t *testing.T) {
	tests := []struct {
		name   string
		runner Runner
		cfg    WatcherConfig
	}{
		{name: "nil runner", cfg: WatcherConfig{Dir: "/tmp", Schedule: "1m"}},
		{name: "no dir", runner: &fakeRunner{}, cfg: WatcherConfig{Schedule: "1m"}},
		{name: "bad schedule", runner: &fakeRunner{}, cfg: WatcherConfig{Dir: "/tmp", Schedule: "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWatcher(tt.runner, tt.cfg, zerolog.Nop()); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestWatcher_StartStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), "img")

	runner := &fakeRunner{ran: make(chan string, 1)}
	w, err := NewWatcher(runner, WatcherConfig{Dir: dir, Schedule: "1h"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	select {
	case <-runner.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected an initial scan")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watcher did not stop")
	}
}

func TestIsImage(t *testing.T) {
	tests := map[string]bool{
		"flyer.png":  true,
		"flyer.JPEG": true,
		"flyer.gif":  true,
		"flyer.ics":  false,
		"README":     false,
	}
	for name, want := range tests {
		if got := IsImage(name); got != want {
			t.Errorf("IsImage(%q): expected %v, got %v", name, want, got)
		}
	}
}

func TestWatcher_TimedOutFlyerIsRetried(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "slow.png"), "img")
	writeFile(t, filepath.Join(dir, "broken.png"), "img")

	runner := &fakeRunner{errs: map[string]error{
		"slow.png":   &agent.StepError{Step: 3, Phase: "model", Err: context.DeadlineExceeded},
		"broken.png": errors.New("missing API key"),
	}}
	w, err := NewWatcher(runner, WatcherConfig{Dir: dir, Schedule: "1m"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := w.Scan(context.Background()); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}
	want := []string{"broken.png", "slow.png", "slow.png"}
	if got := runner.Calls(); !equal(got, want) {
		t.Errorf("Expected calls %v, got %v", want, got)
	}

	runner.mu.Lock()
	runner.errs["slow.png"] = nil
	runner.results = map[string]*agent.Result{
		"slow.png": {Calendar: "BEGIN:VCALENDAR\nEND:VCALENDAR", Outcome: agent.OutcomeFinished},
	}
	runner.mu.Unlock()
	written, err := w.Scan(context.Background())
	if err != nil || written != 1 {
		t.Errorf("Expected the retried flyer to be written, got %d, %v", written, err)
	}
}
