package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func collect(into *[]*Record) Reporter {
	return ReporterFunc(func(_ context.Context, rec *Record) error {
		*into = append(*into, rec)
		return nil
	})
}

func TestContext_CurrentIsNullWhenEmpty(t *testing.T) {
	slot := NewContext(nil, nil)
	if cur := slot.Current(); cur == nil || !cur.IsNull() {
		t.Fatalf("expected Null, got %#v", cur)
	}
}

func TestContext_CreateAndComplete(t *testing.T) {
	var reported []*Record
	slot := NewContext(collect(&reported), nil)

	tx := slot.Create("job-42", KindBackgroundJob, Request{})
	if tx.IsNull() || tx.ID() == "" || tx.CorrelationKey() != "job-42" || tx.Kind() != KindBackgroundJob {
		t.Fatalf("unexpected transaction: %#v", tx)
	}
	if slot.Current() != tx {
		t.Fatal("created transaction should be current")
	}

	if err := slot.CompleteCurrent(context.Background()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !slot.Current().IsNull() {
		t.Fatal("slot should be empty after completion")
	}
	if len(reported) != 1 || reported[0].ID() != tx.ID() || !reported[0].Completed() {
		t.Fatalf("expected one completed report, got %d", len(reported))
	}
}

func TestContext_CompleteEmptySlot(t *testing.T) {
	slot := NewContext(nil, nil)
	if err := slot.CompleteCurrent(context.Background()); !errors.Is(err, ErrNoActiveTransaction) {
		t.Fatalf("expected ErrNoActiveTransaction, got %v", err)
	}
}

func TestContext_ReporterErrorIsWrappedAndSlotCleared(t *testing.T) {
	exportErr := errors.New("exporter down")
	slot := NewContext(ReporterFunc(func(context.Context, *Record) error { return exportErr }), nil)
	slot.Create("job-1", KindBackgroundJob, Request{})

	err := slot.CompleteCurrent(context.Background())
	if !errors.Is(err, exportErr) {
		t.Fatalf("expected wrapped exporter error, got %v", err)
	}
	if !slot.Current().IsNull() {
		t.Fatal("slot must be cleared even when reporting fails")
	}
}

func TestContext_ReporterPanicBecomesError(t *testing.T) {
	slot := NewContext(ReporterFunc(func(context.Context, *Record) error { panic("exporter bug") }), nil)
	slot.Create("job-1", KindBackgroundJob, Request{})

	if err := slot.CompleteCurrent(context.Background()); err == nil {
		t.Fatal("expected error from panicking reporter")
	}
	if !slot.Current().IsNull() {
		t.Fatal("slot must be cleared")
	}
}

func TestContext_CompletionTimeFromClock(t *testing.T) {
	var reported []*Record
	slot := NewContext(collect(&reported), nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	slot.now = func() time.Time { return start }
	slot.Create("job-1", KindBackgroundJob, Request{})
	slot.now = func() time.Time { return start.Add(1500 * time.Millisecond) }

	if err := slot.CompleteCurrent(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec := reported[0]
	if !rec.StartedAt().Equal(start) || rec.Duration() != 1500*time.Millisecond {
		t.Fatalf("started=%v duration=%v", rec.StartedAt(), rec.Duration())
	}
}

func TestWithAndFromContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("background context carries no slot")
	}
	slot := NewContext(nil, nil)
	ctx := With(context.Background(), slot)
	got, ok := FromContext(ctx)
	if !ok || got != slot {
		t.Fatal("expected attached slot")
	}
	if !CurrentFrom(ctx).IsNull() {
		t.Fatal("expected Null from empty slot")
	}
	tx := slot.Create("job-1", KindBackgroundJob, Request{})
	if CurrentFrom(ctx) != tx {
		t.Fatal("CurrentFrom should return the active transaction")
	}
	if !CurrentFrom(context.Background()).IsNull() {
		t.Fatal("expected Null without a slot")
	}
}

func TestProperty_EveryCreateReportedOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("n create/complete cycles report n distinct transactions", prop.ForAll(
		func(n int) bool {
			var reported []*Record
			slot := NewContext(collect(&reported), nil)
			seen := map[string]bool{}
			for i := 0; i < n; i++ {
				slot.Create("job", KindBackgroundJob, Request{})
				if err := slot.CompleteCurrent(context.Background()); err != nil {
					return false
				}
			}
			for _, rec := range reported {
				if seen[rec.ID()] {
					return false
				}
				seen[rec.ID()] = true
			}
			return len(reported) == n && slot.Current().IsNull()
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

func TestProperty_FirstActionWins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("action equals the first non-empty write", prop.ForAll(
		func(actions []string) bool {
			rec := newRecord("job", KindBackgroundJob, Request{}, time.Now())
			want := ""
			for _, a := range actions {
				rec.SetActionIfNil(a)
				if want == "" && a != "" {
					want = a
				}
			}
			return rec.Action() == want
		},
		gen.SliceOf(gen.OneGenOf(gen.Const(""), gen.Identifier())),
	))

	properties.TestingRun(t)
}
