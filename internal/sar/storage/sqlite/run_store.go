package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/iceberg.report/internal/sar/pipeline"
)

// Run is a persisted pipeline run. Timestamps are Unix nanoseconds.
type Run struct {
	RunID        string          `json:"run_id"`
	StartedAt    int64           `json:"started_at"`
	FinishedAt   int64           `json:"finished_at"`
	ChannelsJSON json.RawMessage `json:"channels_json,omitempty"`
	ErrorsJSON   json.RawMessage `json:"errors_json,omitempty"`
	CreatedAt    int64           `json:"created_at"`
}

// StoredObject is a persisted merged object.
type StoredObject struct {
	ObjectID              string          `json:"object_id"`
	RunID                 string          `json:"run_id"`
	Channel               string          `json:"channel"`
	DetectionChannelsJSON json.RawMessage `json:"detection_channels_json"`
	PixelCount            int             `json:"pixel_count"`
	Truncated             bool            `json:"truncated"`
	PerimeterM            float64         `json:"perimeter_m"`
	AreaCFARM2            float64         `json:"area_cfar_m2"`
	AreaCorrectedM2       *float64        `json:"area_corrected_m2,omitempty"`
	CenterX               float64         `json:"center_x"`
	CenterY               float64         `json:"center_y"`
	FeaturesJSON          json.RawMessage `json:"features_json"`
	AssessmentJSON        json.RawMessage `json:"assessment_json,omitempty"`
	OutlineJSON           json.RawMessage `json:"outline_json,omitempty"`
	CreatedAt             int64           `json:"created_at"`
}

// RunStore provides persistence for pipeline runs and their objects.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// SaveResult persists a pipeline result: the run row plus one row per
// merged object, in a single transaction.
func (s *RunStore) SaveResult(res *pipeline.Result) error {
	if res.RunID == "" {
		res.RunID = uuid.New().String()
	}
	now := time.Now().UnixNano()

	channelsJSON, err := json.Marshal(channelSummary(res))
	if err != nil {
		return fmt.Errorf("marshal channel summary: %w", err)
	}
	errorsJSON, err := json.Marshal(errorSummary(res))
	if err != nil {
		return fmt.Errorf("marshal error summary: %w", err)
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO sar_runs (run_id, started_at, finished_at, channels_json, errors_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			res.RunID, res.StartedAt.UnixNano(), res.FinishedAt.UnixNano(),
			string(channelsJSON), string(errorsJSON), now,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, obj := range res.Merged {
			if err := insertObject(tx, res.RunID, obj, now); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func insertObject(tx *sql.Tx, runID string, obj pipeline.Object, now int64) error {
	if obj.ID == "" {
		obj.ID = uuid.New().String()
	}
	detChannels, err := json.Marshal(obj.DetectionChannels)
	if err != nil {
		return fmt.Errorf("marshal detection channels: %w", err)
	}
	featuresJSON, err := json.Marshal(obj.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	var assessmentStr interface{}
	if obj.Assessment != nil {
		data, err := json.Marshal(obj.Assessment)
		if err != nil {
			return fmt.Errorf("marshal assessment: %w", err)
		}
		assessmentStr = string(data)
	}
	var outlineStr interface{}
	if len(obj.Outline) > 0 {
		data, err := json.Marshal(obj.Outline)
		if err != nil {
			return fmt.Errorf("marshal outline: %w", err)
		}
		outlineStr = string(data)
	}
	var corrected interface{}
	if obj.AreaCorrectedM2 != nil {
		corrected = *obj.AreaCorrectedM2
	}

	_, err = tx.Exec(`
		INSERT INTO sar_objects (
			object_id, run_id, channel, detection_channels_json,
			pixel_count, truncated, perimeter_m, area_cfar_m2, area_corrected_m2,
			center_x, center_y, features_json, assessment_json, outline_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obj.ID, runID, string(obj.Channel), string(detChannels),
		obj.PixelCount, obj.Truncated, obj.PerimeterM, obj.AreaCFARM2, corrected,
		obj.CenterX, obj.CenterY, string(featuresJSON), assessmentStr, outlineStr, now,
	)
	if err != nil {
		return fmt.Errorf("insert object %s: %w", obj.ID, err)
	}
	return nil
}

// GetRun returns a single run by ID, or sql.ErrNoRows if absent.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, started_at, finished_at, channels_json, errors_json, created_at
		FROM sar_runs WHERE run_id = ?`, runID)

	var r Run
	var channelsStr, errorsStr sql.NullString
	err := row.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &channelsStr, &errorsStr, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if channelsStr.Valid {
		r.ChannelsJSON = json.RawMessage(channelsStr.String)
	}
	if errorsStr.Valid {
		r.ErrorsJSON = json.RawMessage(errorsStr.String)
	}
	return &r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT run_id, started_at, finished_at, channels_json, errors_json, created_at
		FROM sar_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var channelsStr, errorsStr sql.NullString
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &channelsStr, &errorsStr, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if channelsStr.Valid {
			r.ChannelsJSON = json.RawMessage(channelsStr.String)
		}
		if errorsStr.Valid {
			r.ErrorsJSON = json.RawMessage(errorsStr.String)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// ListObjects returns all objects of a run, largest CFAR footprint first.
func (s *RunStore) ListObjects(runID string) ([]*StoredObject, error) {
	rows, err := s.db.Query(`
		SELECT object_id, run_id, channel, detection_channels_json,
		       pixel_count, truncated, perimeter_m, area_cfar_m2, area_corrected_m2,
		       center_x, center_y, features_json, assessment_json, outline_json, created_at
		FROM sar_objects
		WHERE run_id = ?
		ORDER BY area_cfar_m2 DESC, object_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	var objects []*StoredObject
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

func scanObject(rows *sql.Rows) (*StoredObject, error) {
	var o StoredObject
	var corrected sql.NullFloat64
	var detStr, featStr string
	var assessStr, outlineStr sql.NullString
	err := rows.Scan(
		&o.ObjectID, &o.RunID, &o.Channel, &detStr,
		&o.PixelCount, &o.Truncated, &o.PerimeterM, &o.AreaCFARM2, &corrected,
		&o.CenterX, &o.CenterY, &featStr, &assessStr, &outlineStr, &o.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan object row: %w", err)
	}
	o.DetectionChannelsJSON = json.RawMessage(detStr)
	o.FeaturesJSON = json.RawMessage(featStr)
	if corrected.Valid {
		v := corrected.Float64
		o.AreaCorrectedM2 = &v
	}
	if assessStr.Valid {
		o.AssessmentJSON = json.RawMessage(assessStr.String)
	}
	if outlineStr.Valid {
		o.OutlineJSON = json.RawMessage(outlineStr.String)
	}
	return &o, nil
}

// channelSummary flattens per-channel counts for the run row.
func channelSummary(res *pipeline.Result) map[string]map[string]int {
	summary := make(map[string]map[string]int, len(res.Channels))
	for ch, cr := range res.Channels {
		summary[string(ch)] = map[string]int{
			"objects":    len(cr.Objects),
			"flagged":    cr.FlaggedCount,
			"degenerate": cr.DegenerateCount,
			"warnings":   len(cr.Warnings),
		}
	}
	return summary
}

func errorSummary(res *pipeline.Result) []string {
	var msgs []string
	for _, e := range res.Errors {
		msgs = append(msgs, e.Error())
	}
	return msgs
}
