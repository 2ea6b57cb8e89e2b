package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"metamender/internal/candidate"
	"metamender/internal/catalog"
	"metamender/internal/config"
	"metamender/internal/media"
	"metamender/internal/prompt"
	"metamender/internal/provider"
	"metamender/internal/runlog"
	"metamender/internal/testsupport"
)

type fakeCatalog struct {
	items     []media.Item
	scanErr   error
	failApply map[string]catalog.ApplyErrorKind
	applied   []string
}

func (f *fakeCatalog) Scan(context.Context, catalog.Scope) (iter.Seq[media.Item], error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	snapshot := make([]media.Item, len(f.items))
	copy(snapshot, f.items)
	return func(yield func(media.Item) bool) {
		for _, item := range snapshot {
			if !yield(item) {
				return
			}
		}
	}, nil
}

func (f *fakeCatalog) Apply(ctx context.Context, item media.Item, text string) catalog.ApplyResult {
	if err := ctx.Err(); err != nil {
		return catalog.ApplyResult{Status: catalog.Failed, Kind: catalog.ServerError, Err: err}
	}
	if kind, ok := f.failApply[item.ID]; ok {
		return catalog.ApplyResult{Status: catalog.Failed, Kind: kind, Err: errors.New("write rejected")}
	}
	for i := range f.items {
		if f.items[i].ID == item.ID {
			f.items[i].Overview = text
		}
	}
	f.applied = append(f.applied, item.ID)
	return catalog.ApplyResult{Status: catalog.Applied}
}

type fakeGenerator struct {
	results  map[string]provider.Result
	fallback provider.Result
	calls    []string
	onCall   func(id string)
}

func (f *fakeGenerator) Generate(_ context.Context, item media.Item) provider.Result {
	f.calls = append(f.calls, item.ID)
	if f.onCall != nil {
		f.onCall(item.ID)
	}
	if r, ok := f.results[item.ID]; ok {
		return r
	}
	return f.fallback
}

func (f *fakeGenerator) Name() string  { return "fake" }
func (f *fakeGenerator) Model() string { return "fake-model" }

type countingProgress struct {
	total, steps, finished int
}

func (c *countingProgress) Start(total int)     { c.total = total }
func (c *countingProgress) Step(runlog.Outcome) { c.steps++ }
func (c *countingProgress) Finish()             { c.finished++ }

var generated = strings.Repeat("Warm, modal jazz with a restless tenor voice. ", 3)[:120]

func newPipeline(cat *fakeCatalog, gen *fakeGenerator, sinks ...runlog.Sink) *Pipeline {
	return NewPipeline(Deps{
		Scanner:   cat,
		Generator: gen,
		Applier:   cat,
		Policy:    candidate.Policy{MinLength: 50},
		Sinks:     sinks,
	})
}

func TestRunUpdatesMissingDescription(t *testing.T) {
	cat := &fakeCatalog{items: []media.Item{{ID: "A", Name: "Blue Train", Kind: media.KindAlbum}}}
	gen := &fakeGenerator{fallback: provider.Success(generated, 40, 0.002)}

	summary, err := newPipeline(cat, gen).Run(context.Background(), runlog.RunInfo{RunID: "r1"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Updated != 1 || summary.Tokens != 40 || math.Abs(summary.Cost-0.002) > 1e-9 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(cat.applied) != 1 || cat.items[0].Overview != generated {
		t.Fatalf("expected overview written, got %+v", cat.items[0])
	}
}

func TestRunSkipsAdequateWithoutProviderCall(t *testing.T) {
	cat := &fakeCatalog{items: []media.Item{{ID: "B", Overview: strings.Repeat("b", 200)}}}
	gen := &fakeGenerator{fallback: provider.Success(generated, 40, 0.002)}

	summary, err := newPipeline(cat, gen).Run(context.Background(), runlog.RunInfo{RunID: "r2"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.SkippedByReason[candidate.ReasonAlreadyAdequate] != 1 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(gen.calls) != 0 {
		t.Fatalf("provider should not be called, got %v", gen.calls)
	}
}

func TestProviderFailureDoesNotStopRun(t *testing.T) {
	cat := &fakeCatalog{items: []media.Item{{ID: "C"}, {ID: "D"}}}
	gen := &fakeGenerator{
		results:  map[string]provider.Result{"C": provider.Failure(provider.RateLimited, "http 429")},
		fallback: provider.Success(generated, 40, 0.002),
	}

	summary, err := newPipeline(cat, gen).Run(context.Background(), runlog.RunInfo{RunID: "r3"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.SkippedByReason["RateLimited"] != 1 || summary.Updated != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(gen.calls) != 2 || gen.calls[1] != "D" {
		t.Fatalf("expected D processed after C, calls=%v", gen.calls)
	}
	if len(cat.applied) != 1 || cat.applied[0] != "D" {
		t.Fatalf("C must not be written, applied=%v", cat.applied)
	}
}

func TestApplyFailureIsRecordedAsFailed(t *testing.T) {
	cat := &fakeCatalog{
		items:     []media.Item{{ID: "E"}, {ID: "F"}, {ID: "G"}},
		failApply: map[string]catalog.ApplyErrorKind{"E": catalog.NotFound, "F": catalog.ServerError},
	}
	gen := &fakeGenerator{fallback: provider.Success(generated, 10, 0.001)}
	sink := &memorySink{}

	summary, err := newPipeline(cat, gen, sink).Run(context.Background(), runlog.RunInfo{RunID: "r4"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Failed != 2 || summary.FailedByKind["NotFound"] != 1 || summary.FailedByKind["ServerError"] != 1 || summary.Updated != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Tokens != 30 {
		t.Fatalf("tokens spent on failed writes still count, got %d", summary.Tokens)
	}
	if sink.outcomes[0].Detail == "" || sink.outcomes[0].After == "" {
		t.Fatalf("failed outcome should carry detail and generated text: %+v", sink.outcomes[0])
	}
}

func TestEveryScannedItemHasOneClassification(t *testing.T) {
	cat := &fakeCatalog{
		items: []media.Item{
			{ID: "1"},
			{ID: "2", Overview: strings.Repeat("x", 80)},
			{ID: "3", Overview: "short"},
			{ID: "4"},
			{ID: "5"},
			{ID: "6", Overview: strings.Repeat("y", 50)},
		},
		failApply: map[string]catalog.ApplyErrorKind{"5": catalog.ServerError},
	}
	gen := &fakeGenerator{
		results: map[string]provider.Result{
			"3": provider.Failure(provider.AuthError, "no key"),
			"4": provider.Failure(provider.MalformedResponse, "empty"),
		},
		fallback: provider.Success(generated, 5, 0),
	}
	sink := &memorySink{}

	summary, err := newPipeline(cat, gen, sink).Run(context.Background(), runlog.RunInfo{RunID: "r5"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Scanned != len(cat.items) || summary.Classified() != summary.Scanned {
		t.Fatalf("scanned=%d classified=%d items=%d", summary.Scanned, summary.Classified(), len(cat.items))
	}
	seen := map[string]int{}
	for _, o := range sink.outcomes {
		seen[o.ItemID]++
	}
	for _, item := range cat.items {
		if seen[item.ID] != 1 {
			t.Fatalf("item %s recorded %d times", item.ID, seen[item.ID])
		}
	}
	sumSkipped := 0
	for _, n := range summary.SkippedByReason {
		sumSkipped += n
	}
	if sumSkipped != summary.Skipped {
		t.Fatalf("skip buckets %v do not add up to %d", summary.SkippedByReason, summary.Skipped)
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	cat := &fakeCatalog{items: []media.Item{{ID: "A"}, {ID: "B", Overview: "tiny"}}}
	gen := &fakeGenerator{fallback: provider.Success(generated, 40, 0.002)}
	pipeline := newPipeline(cat, gen)

	first, err := pipeline.Run(context.Background(), runlog.RunInfo{RunID: "first"})
	if err != nil || first.Updated != 2 {
		t.Fatalf("first run: %+v (%v)", first, err)
	}
	gen.calls = nil

	second, err := pipeline.Run(context.Background(), runlog.RunInfo{RunID: "second"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Updated != 0 || second.SkippedByReason[candidate.ReasonAlreadyAdequate] != 2 {
		t.Fatalf("second run should change nothing: %+v", second)
	}
	if len(gen.calls) != 0 {
		t.Fatalf("second run should not call the provider, calls=%v", gen.calls)
	}
}

func TestScanFailureIsFatal(t *testing.T) {
	scanErr := errors.Join(catalog.ErrCatalogUnavailable, errors.New("connection refused"))
	cat := &fakeCatalog{scanErr: scanErr}
	gen := &fakeGenerator{}
	sink := &memorySink{}
	progress := &countingProgress{}

	p := NewPipeline(Deps{Scanner: cat, Generator: gen, Applier: cat, Sinks: []runlog.Sink{sink}, Progress: progress})
	summary, err := p.Run(context.Background(), runlog.RunInfo{RunID: "r6"})
	if !errors.Is(err, catalog.ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
	if summary.RunID != "" || sink.begun != 0 || sink.finished != 0 {
		t.Fatalf("no summary should be produced, got %+v sink=%+v", summary, sink)
	}
	if progress.total != 0 || progress.finished != 0 {
		t.Fatalf("progress should not start, got %+v", progress)
	}
}

func TestCancellationFinalizesPartialSummary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cat := &fakeCatalog{items: []media.Item{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	gen := &fakeGenerator{
		fallback: provider.Success(generated, 1, 0),
		onCall: func(id string) {
			if id == "2" {
				cancel()
			}
		},
	}
	sink := &memorySink{}
	progress := &countingProgress{}

	p := NewPipeline(Deps{Scanner: cat, Generator: gen, Applier: cat, Policy: candidate.Policy{MinLength: 50}, Sinks: []runlog.Sink{sink}, Progress: progress})
	summary, err := p.Run(ctx, runlog.RunInfo{RunID: "r7"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !summary.Interrupted || summary.Scanned != 2 || summary.Classified() != 2 {
		t.Fatalf("unexpected partial summary %+v", summary)
	}
	if sink.finished != 1 {
		t.Fatalf("expected sinks finalized once, got %d", sink.finished)
	}
	if progress.total != 3 || progress.steps != 2 || progress.finished != 1 {
		t.Fatalf("unexpected progress %+v", progress)
	}
}

func TestCancellationDuringGenerationKeepsItemOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": generated}}},
			"usage":   map[string]int{"prompt_tokens": 30, "completion_tokens": 10, "total_tokens": 40},
		})
	}))
	defer llm.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithProvider(config.ProviderOpenAI, llm.URL))
	cat := &fakeCatalog{items: []media.Item{{ID: "1", Kind: media.KindAlbum}, {ID: "2", Kind: media.KindAlbum}}}
	p := NewPipeline(Deps{
		Scanner:   cat,
		Generator: provider.New(cfg, prompt.Default()),
		Applier:   cat,
		Policy:    candidate.Policy{MinLength: 50},
	})

	summary, err := p.Run(ctx, runlog.RunInfo{RunID: "r8"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Scanned != 1 || summary.Updated != 1 || summary.Skipped != 0 || summary.Failed != 0 {
		t.Fatalf("in-flight item should finish as applied, got %+v", summary)
	}
	if summary.Tokens != 40 {
		t.Fatalf("expected tokens from the finished item, got %d", summary.Tokens)
	}
	if cat.items[0].Overview != generated || cat.items[1].Overview != "" {
		t.Fatalf("unexpected catalog state %+v", cat.items)
	}
}

type memorySink struct {
	begun    int
	finished int
	outcomes []runlog.Outcome
}

func (m *memorySink) Begin(context.Context, runlog.RunInfo) error {
	m.begun++
	return nil
}

func (m *memorySink) Record(_ context.Context, _ runlog.RunInfo, o runlog.Outcome) error {
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *memorySink) Finish(context.Context, runlog.Summary) error {
	m.finished++
	return nil
}
