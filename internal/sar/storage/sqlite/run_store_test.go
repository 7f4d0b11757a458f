package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/iceberg.report/internal/sar"
	"github.com/banshee-data/iceberg.report/internal/sar/classify"
	"github.com/banshee-data/iceberg.report/internal/sar/features"
	"github.com/banshee-data/iceberg.report/internal/sar/pipeline"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleResult() *pipeline.Result {
	corrected := 2100.0
	started := time.Now().UTC().Add(-time.Minute)
	return &pipeline.Result{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(30 * time.Second),
		Channels: map[sar.Channel]*pipeline.ChannelResult{
			sar.ChannelHH: {Channel: sar.ChannelHH, FlaggedCount: 27, DegenerateCount: 3},
		},
		Merged: []pipeline.Object{
			{
				ID:                "obj-1",
				Channel:           sar.ChannelHH,
				DetectionChannels: []sar.Channel{sar.ChannelHH, sar.ChannelHV},
				PixelCount:        25,
				PerimeterM:        800,
				AreaCFARM2:        40000,
				AreaCorrectedM2:   &corrected,
				CenterX:           512000,
				CenterY:           7800000,
				Outline:           orb.Ring{{0, 0}, {40, 0}, {40, 40}, {0, 40}, {0, 0}},
				Features:          features.FeatureVector{SqrtAreaCFAR: 200, MeanDB: -4.2},
				Assessment:        &classify.Assessment{ZMeanDB: 0.4, Plausible: true},
			},
			{
				ID:                "obj-2",
				Channel:           sar.ChannelHV,
				DetectionChannels: []sar.Channel{sar.ChannelHV},
				PixelCount:        2,
				PerimeterM:        240,
				AreaCFARM2:        3200,
				CenterX:           510000,
				CenterY:           7810000,
			},
		},
	}
}

func TestSaveResult_RoundTrip(t *testing.T) {
	db := testDB(t)
	store := NewRunStore(db)

	res := sampleResult()
	if err := store.SaveResult(res); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	run, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.StartedAt != res.StartedAt.UnixNano() {
		t.Errorf("StartedAt = %d, want %d", run.StartedAt, res.StartedAt.UnixNano())
	}
	var channels map[string]map[string]int
	if err := json.Unmarshal(run.ChannelsJSON, &channels); err != nil {
		t.Fatalf("unmarshal channel summary: %v", err)
	}
	if channels["HH"]["flagged"] != 27 {
		t.Errorf("channel summary = %v, want HH flagged 27", channels)
	}

	objects, err := store.ListObjects("run-1")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("got %d objects, want 2", len(objects))
	}
	// Largest CFAR footprint first.
	first := objects[0]
	if first.ObjectID != "obj-1" {
		t.Errorf("first object = %s, want obj-1", first.ObjectID)
	}
	if first.AreaCorrectedM2 == nil || *first.AreaCorrectedM2 != 2100 {
		t.Errorf("AreaCorrectedM2 = %v, want 2100", first.AreaCorrectedM2)
	}
	var detChannels []string
	if err := json.Unmarshal(first.DetectionChannelsJSON, &detChannels); err != nil {
		t.Fatalf("unmarshal detection channels: %v", err)
	}
	if len(detChannels) != 2 {
		t.Errorf("detection channels = %v, want both", detChannels)
	}
	var feats features.FeatureVector
	if err := json.Unmarshal(first.FeaturesJSON, &feats); err != nil {
		t.Fatalf("unmarshal features: %v", err)
	}
	if feats.MeanDB != -4.2 {
		t.Errorf("MeanDB = %v, want -4.2", feats.MeanDB)
	}

	second := objects[1]
	if second.AreaCorrectedM2 != nil {
		t.Error("object without a model prediction must round-trip a NULL")
	}
	if second.AssessmentJSON != nil {
		t.Error("object without an assessment must round-trip a NULL")
	}
}

func TestSaveResult_DuplicateRunID(t *testing.T) {
	db := testDB(t)
	store := NewRunStore(db)

	res := sampleResult()
	if err := store.SaveResult(res); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if err := store.SaveResult(sampleResult()); err == nil {
		t.Error("expected primary key violation on duplicate run_id")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := testDB(t)
	store := NewRunStore(db)

	_, err := store.GetRun("missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetRun on missing id = %v, want sql.ErrNoRows", err)
	}
}

func TestListRuns_Order(t *testing.T) {
	db := testDB(t)
	store := NewRunStore(db)

	older := sampleResult()
	older.RunID = "run-old"
	older.StartedAt = older.StartedAt.Add(-time.Hour)
	older.Merged = nil
	if err := store.SaveResult(older); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	newer := sampleResult()
	newer.RunID = "run-new"
	newer.Merged = nil
	if err := store.SaveResult(newer); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].RunID != "run-new" || runs[1].RunID != "run-old" {
		t.Errorf("runs out of order: %s, %s", runs[0].RunID, runs[1].RunID)
	}
}

func TestRetryOnBusy(t *testing.T) {
	t.Run("success without retry", func(t *testing.T) {
		calls := 0
		if err := retryOnBusy(func() error { calls++; return nil }); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("retries busy errors", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			return nil
		})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("non-busy error fails immediately", func(t *testing.T) {
		calls := 0
		sentinel := errors.New("constraint violation")
		err := retryOnBusy(func() error { calls++; return sentinel })
		if !errors.Is(err, sentinel) {
			t.Errorf("expected %v, got %v", sentinel, err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})
}
