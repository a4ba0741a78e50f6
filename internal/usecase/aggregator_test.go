package usecase

import (
	"testing"
	"time"

	"DepthWatch/internal/domain/models"
)

func scoredEntry(side models.Side, notional float64, persistent bool, impact float64) *models.TrackedEntry {
	now := time.Now()
	return &models.TrackedEntry{
		Key:            models.EntryKey(side, notional),
		Symbol:         "BTCUSDT",
		Side:           side,
		Price:          50_000,
		Qty:            notional / 50_000,
		Notional:       notional,
		CreatedAt:      now,
		LastSeenAt:     now,
		ImpactRatio:    impact,
		IsPersistent:   persistent,
		Classification: models.ClassUnknown,
	}
}

func spoofEntry(side models.Side) *models.TrackedEntry {
	e := scoredEntry(side, 5e8, false, 0.5)
	e.IsSpoof = true
	e.Classification = models.ClassSpoof
	return e
}

func TestAggregateManipulationOnSpoofs(t *testing.T) {
	a := NewSignalAggregator(testParams())

	res := a.Aggregate([]*models.TrackedEntry{
		spoofEntry(models.SideBid),
		spoofEntry(models.SideBid),
		spoofEntry(models.SideAsk),
	}, 100, 1000, 900)

	if res.SpoofCount != 3 {
		t.Fatalf("expected 3 spoofs, got %d", res.SpoofCount)
	}
	if res.Verdict != models.VerdictManipulation {
		t.Fatalf("expected MANIPULATION, got %s", res.Verdict)
	}
	if res.BuyScore != 0 || res.SellScore != 0 {
		t.Fatalf("spoofed entries must not contribute score: %+v", res)
	}
}

func TestAggregateAccumulation(t *testing.T) {
	a := NewSignalAggregator(testParams())

	// Persistent 4e8 bid wall: 2.0 x 1.5 x 4 = 12 buy score.
	entries := []*models.TrackedEntry{scoredEntry(models.SideBid, 4e8, true, 0.30)}
	res := a.Aggregate(entries, 500, 1100, 1000)

	if res.BuyScore <= res.SellScore {
		t.Fatalf("expected buy side leading: %+v", res)
	}
	if res.Verdict != models.VerdictAccumulateMarkup {
		t.Fatalf("expected ACCUMULATE_MARKUP, got %s", res.Verdict)
	}
	if res.OIChangePct != 10 {
		t.Fatalf("expected OI change 10%%, got %v", res.OIChangePct)
	}
}

func TestAggregateDistribution(t *testing.T) {
	a := NewSignalAggregator(testParams())

	entries := []*models.TrackedEntry{scoredEntry(models.SideAsk, 4e8, true, 0.30)}
	res := a.Aggregate(entries, -500, 900, 1000)

	if res.Verdict != models.VerdictDistributionMarkdown {
		t.Fatalf("expected DISTRIBUTION_MARKDOWN, got %s", res.Verdict)
	}
}

func TestAggregateManipulationOnContradiction(t *testing.T) {
	a := NewSignalAggregator(testParams())

	// Bid walls dominate while CVD is negative: contradiction.
	entries := []*models.TrackedEntry{scoredEntry(models.SideBid, 4e8, true, 0.30)}
	res := a.Aggregate(entries, -500, 1000, 1000)

	if res.Verdict != models.VerdictManipulation {
		t.Fatalf("expected MANIPULATION on contradiction, got %s", res.Verdict)
	}
}

func TestAggregateNeutralOnTie(t *testing.T) {
	a := NewSignalAggregator(testParams())

	entries := []*models.TrackedEntry{
		scoredEntry(models.SideBid, 1e8, false, 0.10),
		scoredEntry(models.SideAsk, 1e8, false, 0.10),
	}
	// Flow disagrees with itself: CVD up, OI down.
	res := a.Aggregate(entries, 100, 900, 1000)

	if res.Verdict != models.VerdictNeutral {
		t.Fatalf("expected NEUTRAL, got %s", res.Verdict)
	}
}

func TestAggregateTieBrokenByFlow(t *testing.T) {
	a := NewSignalAggregator(testParams())

	entries := []*models.TrackedEntry{
		scoredEntry(models.SideBid, 1e8, false, 0.10),
		scoredEntry(models.SideAsk, 1e8, false, 0.10),
	}

	res := a.Aggregate(entries, 100, 1100, 1000)
	if res.Verdict != models.VerdictAccumulateMarkup {
		t.Fatalf("CVD and OI both up should accumulate, got %s", res.Verdict)
	}

	res = a.Aggregate(entries, -100, 900, 1000)
	if res.Verdict != models.VerdictDistributionMarkdown {
		t.Fatalf("CVD and OI both down should distribute, got %s", res.Verdict)
	}
}

func TestAggregateEmptyIsUnknown(t *testing.T) {
	a := NewSignalAggregator(testParams())

	res := a.Aggregate(nil, 0, 0, 0)
	if res.Verdict != models.VerdictUnknown {
		t.Fatalf("expected UNKNOWN for empty input, got %s", res.Verdict)
	}
}

func TestAggregatePure(t *testing.T) {
	a := NewSignalAggregator(testParams())
	entries := []*models.TrackedEntry{
		scoredEntry(models.SideBid, 4e8, true, 0.30),
		scoredEntry(models.SideAsk, 2e8, false, 0.10),
	}

	first := a.Aggregate(entries, 500, 1100, 1000)
	second := a.Aggregate(entries, 500, 1100, 1000)
	if first != second {
		t.Fatalf("aggregate not pure: %+v vs %+v", first, second)
	}
}

func TestAggregateSweepMultiplier(t *testing.T) {
	a := NewSignalAggregator(testParams())

	plain := scoredEntry(models.SideBid, 2e8, false, 0.30)
	swept := scoredEntry(models.SideBid, 2e8, false, 0.30)
	swept.Classification = models.ClassSweepBuy

	plainRes := a.Aggregate([]*models.TrackedEntry{plain}, 0, 0, 0)
	sweptRes := a.Aggregate([]*models.TrackedEntry{swept}, 0, 0, 0)

	if sweptRes.BuyScore != plainRes.BuyScore*1.5 {
		t.Fatalf("sweep should score 1.5x: plain=%v swept=%v", plainRes.BuyScore, sweptRes.BuyScore)
	}
}
