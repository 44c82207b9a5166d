package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/uskin/uskin"
)

// FrameRecord summarises one stored frame.
type FrameRecord struct {
	FrameID    string    `json:"frame_id"`
	SensorID   string    `json:"sensor_id"`
	Timestamp  time.Time `json:"timestamp"`
	NodeCount  int       `json:"node_count"`
	Complete   bool      `json:"complete"`
	Normalized bool      `json:"normalized"`
}

// NodeRecord is one stored node reading. The normalized channels are nil
// when the frame was recorded before calibration.
type NodeRecord struct {
	Index  int    `json:"index"`
	NodeID uint32 `json:"node_id"`
	uskin.Vector
	XN *float64 `json:"xn,omitempty"`
	YN *float64 `json:"yn,omitempty"`
	ZN *float64 `json:"zn,omitempty"`
}

// RecordFrame stores the received nodes of f, with their normalized values
// when n is not nil, and returns the new frame id.
func (db *DB) RecordFrame(sensorID string, f *uskin.Frame, n *uskin.NormalizedFrame) (string, error) {
	frameID := uuid.New().String()

	tx, err := db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO frames (frame_id, sensor_id, timestamp_ns, node_count, complete, normalized)
		VALUES (?, ?, ?, ?, ?, ?)
	`, frameID, sensorID, f.Timestamp.UnixNano(), f.NodeCount, f.Complete, n != nil)
	if err != nil {
		return "", fmt.Errorf("failed to insert frame: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO frame_nodes (frame_id, node_index, node_id, x, y, z, xn, yn, zn)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i, r := range f.Nodes {
		if !r.Valid {
			continue
		}
		var xn, yn, zn sql.NullFloat64
		if n != nil && i < len(n.Nodes) && n.Nodes[i].Valid {
			nr := n.Nodes[i]
			xn = sql.NullFloat64{Float64: nr.X, Valid: true}
			yn = sql.NullFloat64{Float64: nr.Y, Valid: true}
			zn = sql.NullFloat64{Float64: nr.Z, Valid: true}
		}
		if _, err := stmt.Exec(frameID, r.Index, r.NodeID, r.X, r.Y, r.Z, xn, yn, zn); err != nil {
			return "", fmt.Errorf("failed to insert node %d: %w", r.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return frameID, nil
}

// RecentFrames returns up to limit frames of sensorID, newest first.
func (db *DB) RecentFrames(sensorID string, limit int) ([]FrameRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT frame_id, sensor_id, timestamp_ns, node_count, complete, normalized
		FROM frames
		WHERE sensor_id = ?
		ORDER BY timestamp_ns DESC
		LIMIT ?
	`, sensorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var rec FrameRecord
		var ts int64
		if err := rows.Scan(&rec.FrameID, &rec.SensorID, &ts, &rec.NodeCount, &rec.Complete, &rec.Normalized); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FrameNodes returns the stored nodes of frameID in index order.
func (db *DB) FrameNodes(frameID string) ([]NodeRecord, error) {
	rows, err := db.Query(`
		SELECT node_index, node_id, x, y, z, xn, yn, zn
		FROM frame_nodes
		WHERE frame_id = ?
		ORDER BY node_index
	`, frameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodeRecord
	for rows.Next() {
		var rec NodeRecord
		var xn, yn, zn sql.NullFloat64
		if err := rows.Scan(&rec.Index, &rec.NodeID, &rec.X, &rec.Y, &rec.Z, &xn, &yn, &zn); err != nil {
			return nil, err
		}
		rec.XN, rec.YN, rec.ZN = nullable(xn), nullable(yn), nullable(zn)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		var exists bool
		if err := db.QueryRow(`SELECT COUNT(*) > 0 FROM frames WHERE frame_id = ?`, frameID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("frame %s: %w", frameID, ErrNotFound)
		}
	}
	return out, nil
}

// PruneFrames deletes frames older than before and returns how many were
// removed.
func (db *DB) PruneFrames(before time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM frames WHERE timestamp_ns < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune frames: %w", err)
	}
	return res.RowsAffected()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Sink returns a frame sink that records every frame.
func (db *DB) Sink() uskin.FrameSink {
	return uskin.FrameSinkFunc(func(sensorID string, f *uskin.Frame, n *uskin.NormalizedFrame) error {
		_, err := db.RecordFrame(sensorID, f, n)
		return err
	})
}
