// Package framedb persists closed point-cloud frames to SQLite.
package framedb

import (
	"database/sql"
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/pointstream/internal/frames"
	"github.com/banshee-data/pointstream/internal/monitoring"
)

// FrameDB wraps the SQLite handle used to record frames.
type FrameDB struct {
	*sql.DB
}

// schema.sql contains the SQL statements for creating the frame store
// schema: a sessions table and the frames table with packed point blobs.
//
//go:embed schema.sql
var schemaSQL string

// Open opens (creating if needed) the frame database at path.
func Open(path string) (*FrameDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("framedb: failed to initialise schema: %w", err)
	}

	monitoring.Logf("initialized frame database schema")

	return &FrameDB{db}, nil
}

// BeginSession registers a new recording session and returns its id.
func (f *FrameDB) BeginSession(sensorID uint16) (string, error) {
	id := uuid.NewString()
	_, err := f.Exec(`INSERT INTO sessions (session_id, sensor_id, started_unix_nanos) VALUES (?, ?, ?)`,
		id, sensorID, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("framedb: failed to begin session: %w", err)
	}
	return id, nil
}

// InsertFrame persists one closed frame under the given session.
func (f *FrameDB) InsertFrame(sessionID string, fr *frames.Frame) error {
	stmt := `INSERT INTO frames (session_id, sensor_id, start_ts_ns, end_ts_ns, seq_first, seq_last, packet_count, point_count, points)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := f.Exec(stmt, sessionID, fr.SensorID,
		int64(fr.StartTsNs), int64(fr.EndTsNs),
		fr.SeqFirst, fr.SeqLast, fr.PacketCount, fr.PointCount,
		packPoints(fr.Points))
	if err != nil {
		return fmt.Errorf("framedb: failed to insert frame: %w", err)
	}
	return nil
}

// FrameSummary is the stored metadata of one frame.
type FrameSummary struct {
	FrameID     int64
	SensorID    uint16
	StartTsNs   uint64
	EndTsNs     uint64
	SeqFirst    uint32
	SeqLast     uint32
	PacketCount int
	PointCount  int
}

// SessionFrames returns the summaries of all frames recorded in a session,
// ordered by start timestamp.
func (f *FrameDB) SessionFrames(sessionID string) ([]FrameSummary, error) {
	rows, err := f.Query(`SELECT frame_id, sensor_id, start_ts_ns, end_ts_ns, seq_first, seq_last, packet_count, point_count
						  FROM frames WHERE session_id = ? ORDER BY start_ts_ns`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameSummary
	for rows.Next() {
		var s FrameSummary
		var startNs, endNs int64
		if err := rows.Scan(&s.FrameID, &s.SensorID, &startNs, &endNs,
			&s.SeqFirst, &s.SeqLast, &s.PacketCount, &s.PointCount); err != nil {
			return nil, err
		}
		s.StartTsNs = uint64(startNs)
		s.EndTsNs = uint64(endNs)
		out = append(out, s)
	}
	return out, rows.Err()
}

// FramePoints loads and unpacks the point blob of one stored frame.
func (f *FrameDB) FramePoints(frameID int64) ([]frames.Vec3, error) {
	var blob []byte
	if err := f.QueryRow(`SELECT points FROM frames WHERE frame_id = ?`, frameID).Scan(&blob); err != nil {
		return nil, err
	}
	return unpackPoints(blob)
}

// packPoints encodes points as consecutive little-endian float32 xyz
// triples.
func packPoints(pts []frames.Vec3) []byte {
	buf := make([]byte, 0, len(pts)*12)
	var b [12]byte
	for _, p := range pts {
		binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(p.Z))
		buf = append(buf, b[:]...)
	}
	return buf
}

func unpackPoints(blob []byte) ([]frames.Vec3, error) {
	if len(blob)%12 != 0 {
		return nil, fmt.Errorf("framedb: point blob length %d is not a multiple of 12", len(blob))
	}
	out := make([]frames.Vec3, len(blob)/12)
	for i := range out {
		rec := blob[i*12:]
		out[i] = frames.Vec3{
			X: math.Float32frombits(binary.LittleEndian.Uint32(rec[0:4])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(rec[4:8])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(rec[8:12])),
		}
	}
	return out, nil
}
