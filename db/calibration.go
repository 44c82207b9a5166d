package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/uskin/uskin"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("db: not found")

// SaveCalibration stores t under key, replacing any previous baseline.
func (db *DB) SaveCalibration(key string, t *uskin.CalibrationTable) error {
	if t.Len() == 0 {
		return errors.New("db: empty calibration table")
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM calibrations WHERE calibration_key = ?`, key); err != nil {
		return fmt.Errorf("failed to clear calibration %s: %w", key, err)
	}
	if _, err := tx.Exec(`INSERT INTO calibrations (calibration_key, node_count) VALUES (?, ?)`, key, t.Len()); err != nil {
		return fmt.Errorf("failed to insert calibration %s: %w", key, err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO calibration_nodes (calibration_key, node_index, min_x, min_y, min_z)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, m := range t.Rows() {
		if _, err := stmt.Exec(key, i, m.X, m.Y, m.Z); err != nil {
			return fmt.Errorf("failed to insert calibration node %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadCalibration returns the baseline saved under key.
func (db *DB) LoadCalibration(key string) (*uskin.CalibrationTable, error) {
	var nodeCount int
	err := db.QueryRow(`SELECT node_count FROM calibrations WHERE calibration_key = ?`, key).Scan(&nodeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calibration %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT node_index, min_x, min_y, min_z
		FROM calibration_nodes
		WHERE calibration_key = ?
		ORDER BY node_index
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mins := make([]uskin.Vector, nodeCount)
	seen := 0
	for rows.Next() {
		var idx int
		var m uskin.Vector
		if err := rows.Scan(&idx, &m.X, &m.Y, &m.Z); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= nodeCount {
			return nil, fmt.Errorf("calibration %s: node index %d outside %d nodes", key, idx, nodeCount)
		}
		mins[idx] = m
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if seen != nodeCount {
		return nil, fmt.Errorf("calibration %s: %d of %d nodes stored", key, seen, nodeCount)
	}
	return uskin.TableFromRows(mins), nil
}
