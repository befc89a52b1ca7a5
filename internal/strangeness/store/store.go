// Package store persists strangeness builder output to sqlite.
//
// Each Store instance belongs to a single builder session, identified by a
// UUID. Records carry a per-session position counter so that optional
// covariance rows can be joined back to their candidate rows by position,
// mirroring the in-memory emission order.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/strangeness.report/internal/strangeness"
)

type Store struct {
	*sql.DB

	sessionID string

	v0Pos      int64
	v0CovPos   int64
	cascPos    int64
	cascCovPos int64
}

// NewStore opens (creating if needed) the sqlite database at path and
// registers a fresh builder session.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS builder_sessions (
			session_id        TEXT PRIMARY KEY,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS events (
			session_id        TEXT,
			collision_id      BIGINT,
			run_number        BIGINT,
			timestamp_ns      BIGINT,
			pv_x              DOUBLE,
			pv_y              DOUBLE,
			pv_z              DOUBLE
		);
		CREATE TABLE IF NOT EXISTS v0s (
			session_id        TEXT,
			position          BIGINT,
			v0_id             BIGINT,
			collision_id      BIGINT,
			pos_id            BIGINT,
			neg_id            BIGINT,
			x                 DOUBLE,
			y                 DOUBLE,
			z                 DOUBLE,
			px_pos            DOUBLE,
			py_pos            DOUBLE,
			pz_pos            DOUBLE,
			px_neg            DOUBLE,
			py_neg            DOUBLE,
			pz_neg            DOUBLE,
			dca_daughters     DOUBLE,
			dca_pos_pv        DOUBLE,
			dca_neg_pv        DOUBLE,
			cos_pa            DOUBLE,
			radius            DOUBLE,
			mass_lambda       DOUBLE,
			mass_antilambda   DOUBLE,
			PRIMARY KEY (session_id, position)
		);
		CREATE TABLE IF NOT EXISTS v0_covariances (
			session_id        TEXT,
			position          BIGINT,
			elements          TEXT,
			PRIMARY KEY (session_id, position)
		);
		CREATE TABLE IF NOT EXISTS cascades (
			session_id        TEXT,
			position          BIGINT,
			cascade_id        BIGINT,
			v0_id             BIGINT,
			bachelor_id       BIGINT,
			collision_id      BIGINT,
			charge            BIGINT,
			x                 DOUBLE,
			y                 DOUBLE,
			z                 DOUBLE,
			px_bach           DOUBLE,
			py_bach           DOUBLE,
			pz_bach           DOUBLE,
			v0_x              DOUBLE,
			v0_y              DOUBLE,
			v0_z              DOUBLE,
			px_pos            DOUBLE,
			py_pos            DOUBLE,
			pz_pos            DOUBLE,
			px_neg            DOUBLE,
			py_neg            DOUBLE,
			pz_neg            DOUBLE,
			pos_id            BIGINT,
			neg_id            BIGINT,
			dca_daughters     DOUBLE,
			dca_v0_daughters  DOUBLE,
			dca_bach_pv       DOUBLE,
			dca_pos_pv        DOUBLE,
			dca_neg_pv        DOUBLE,
			radius            DOUBLE,
			PRIMARY KEY (session_id, position)
		);
		CREATE TABLE IF NOT EXISTS cascade_covariances (
			session_id        TEXT,
			position          BIGINT,
			elements          TEXT,
			PRIMARY KEY (session_id, position)
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{DB: db, sessionID: uuid.New().String()}
	if _, err := db.Exec("INSERT INTO builder_sessions (session_id) VALUES (?)", s.sessionID); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// SessionID returns the UUID under which this store writes rows.
func (s *Store) SessionID() string {
	return s.sessionID
}

// RecordEvent stores the collision header for a processed event.
func (s *Store) RecordEvent(col strangeness.Collision) error {
	_, err := s.Exec(
		"INSERT INTO events (session_id, collision_id, run_number, timestamp_ns, pv_x, pv_y, pv_z) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.sessionID, col.ID, col.RunNumber, col.TimestampNS,
		col.Vertex[0], col.Vertex[1], col.Vertex[2],
	)
	return err
}

func (s *Store) EmitV0(rec strangeness.V0Record) error {
	_, err := s.Exec(`
		INSERT INTO v0s (
			session_id, position, v0_id, collision_id, pos_id, neg_id,
			x, y, z,
			px_pos, py_pos, pz_pos,
			px_neg, py_neg, pz_neg,
			dca_daughters, dca_pos_pv, dca_neg_pv,
			cos_pa, radius, mass_lambda, mass_antilambda
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sessionID, s.v0Pos, rec.V0ID, rec.CollisionID, rec.PosID, rec.NegID,
		rec.X, rec.Y, rec.Z,
		rec.PxPos, rec.PyPos, rec.PzPos,
		rec.PxNeg, rec.PyNeg, rec.PzNeg,
		rec.DCADaughters, rec.DCAPosToPV, rec.DCANegToPV,
		rec.CosPA, rec.Radius, rec.MassLambda, rec.MassAntiLambda,
	)
	if err != nil {
		return fmt.Errorf("insert v0 record: %w", err)
	}
	s.v0Pos++
	return nil
}

func (s *Store) EmitV0Covariance(rec strangeness.CovarianceRecord) error {
	if err := s.insertCovariance("v0_covariances", s.v0CovPos, rec); err != nil {
		return err
	}
	s.v0CovPos++
	return nil
}

func (s *Store) EmitCascade(rec strangeness.CascadeRecord) error {
	_, err := s.Exec(`
		INSERT INTO cascades (
			session_id, position, cascade_id, v0_id, bachelor_id, collision_id, charge,
			x, y, z,
			px_bach, py_bach, pz_bach,
			v0_x, v0_y, v0_z,
			px_pos, py_pos, pz_pos,
			px_neg, py_neg, pz_neg,
			pos_id, neg_id,
			dca_daughters, dca_v0_daughters, dca_bach_pv, dca_pos_pv, dca_neg_pv,
			radius
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sessionID, s.cascPos, rec.CascadeID, rec.V0ID, rec.BachelorID, rec.CollisionID, rec.Charge,
		rec.X, rec.Y, rec.Z,
		rec.PxBach, rec.PyBach, rec.PzBach,
		rec.V0X, rec.V0Y, rec.V0Z,
		rec.PxPos, rec.PyPos, rec.PzPos,
		rec.PxNeg, rec.PyNeg, rec.PzNeg,
		rec.PosID, rec.NegID,
		rec.DCACascDaughters, rec.DCAV0Daughters, rec.DCABachelorToPV, rec.DCAPosToPV, rec.DCANegToPV,
		rec.Radius,
	)
	if err != nil {
		return fmt.Errorf("insert cascade record: %w", err)
	}
	s.cascPos++
	return nil
}

func (s *Store) EmitCascadeCovariance(rec strangeness.CovarianceRecord) error {
	if err := s.insertCovariance("cascade_covariances", s.cascCovPos, rec); err != nil {
		return err
	}
	s.cascCovPos++
	return nil
}

func (s *Store) insertCovariance(table string, position int64, rec strangeness.CovarianceRecord) error {
	elements, err := json.Marshal(rec.Elements)
	if err != nil {
		return fmt.Errorf("marshal covariance elements: %w", err)
	}
	_, err = s.Exec(
		fmt.Sprintf("INSERT INTO %s (session_id, position, elements) VALUES (?, ?, ?)", table),
		s.sessionID, position, string(elements),
	)
	if err != nil {
		return fmt.Errorf("insert covariance row: %w", err)
	}
	return nil
}

// V0s returns the session's V0 records in emission order.
func (s *Store) V0s() ([]strangeness.V0Record, error) {
	rows, err := s.Query(`
		SELECT v0_id, collision_id, pos_id, neg_id,
			x, y, z,
			px_pos, py_pos, pz_pos,
			px_neg, py_neg, pz_neg,
			dca_daughters, dca_pos_pv, dca_neg_pv,
			cos_pa, radius, mass_lambda, mass_antilambda
		FROM v0s WHERE session_id = ? ORDER BY position`, s.sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []strangeness.V0Record
	for rows.Next() {
		var rec strangeness.V0Record
		err := rows.Scan(
			&rec.V0ID, &rec.CollisionID, &rec.PosID, &rec.NegID,
			&rec.X, &rec.Y, &rec.Z,
			&rec.PxPos, &rec.PyPos, &rec.PzPos,
			&rec.PxNeg, &rec.PyNeg, &rec.PzNeg,
			&rec.DCADaughters, &rec.DCAPosToPV, &rec.DCANegToPV,
			&rec.CosPA, &rec.Radius, &rec.MassLambda, &rec.MassAntiLambda,
		)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Cascades returns the session's cascade records in emission order.
func (s *Store) Cascades() ([]strangeness.CascadeRecord, error) {
	rows, err := s.Query(`
		SELECT cascade_id, v0_id, bachelor_id, collision_id, charge,
			x, y, z,
			px_bach, py_bach, pz_bach,
			v0_x, v0_y, v0_z,
			px_pos, py_pos, pz_pos,
			px_neg, py_neg, pz_neg,
			pos_id, neg_id,
			dca_daughters, dca_v0_daughters, dca_bach_pv, dca_pos_pv, dca_neg_pv,
			radius
		FROM cascades WHERE session_id = ? ORDER BY position`, s.sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []strangeness.CascadeRecord
	for rows.Next() {
		var rec strangeness.CascadeRecord
		err := rows.Scan(
			&rec.CascadeID, &rec.V0ID, &rec.BachelorID, &rec.CollisionID, &rec.Charge,
			&rec.X, &rec.Y, &rec.Z,
			&rec.PxBach, &rec.PyBach, &rec.PzBach,
			&rec.V0X, &rec.V0Y, &rec.V0Z,
			&rec.PxPos, &rec.PyPos, &rec.PzPos,
			&rec.PxNeg, &rec.PyNeg, &rec.PzNeg,
			&rec.PosID, &rec.NegID,
			&rec.DCACascDaughters, &rec.DCAV0Daughters, &rec.DCABachelorToPV, &rec.DCAPosToPV, &rec.DCANegToPV,
			&rec.Radius,
		)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// V0Covariances returns the session's V0 covariance rows in emission order.
// Entry i joins to the i-th stored V0 when covariance output was enabled for
// the whole session.
func (s *Store) V0Covariances() ([]strangeness.CovarianceRecord, error) {
	return s.covariances("v0_covariances")
}

// CascadeCovariances returns the session's cascade covariance rows in
// emission order.
func (s *Store) CascadeCovariances() ([]strangeness.CovarianceRecord, error) {
	return s.covariances("cascade_covariances")
}

func (s *Store) covariances(table string) ([]strangeness.CovarianceRecord, error) {
	rows, err := s.Query(
		fmt.Sprintf("SELECT elements FROM %s WHERE session_id = ? ORDER BY position", table),
		s.sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []strangeness.CovarianceRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec strangeness.CovarianceRecord
		if err := json.Unmarshal([]byte(raw), &rec.Elements); err != nil {
			return nil, fmt.Errorf("decode covariance elements: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
