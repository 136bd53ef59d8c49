package node

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists nodes and their sensors.
type Repository interface {
	// TouchNode creates the node if needed. When seen is true an existing
	// node's last_seen is moved to at. Reports whether the node is new.
	TouchNode(ctx context.Context, id uint8, at time.Time, seen bool) (bool, error)

	// SetNodeType records the node presentation.
	SetNodeType(ctx context.Context, id uint8, nodeType, libraryVersion string) error

	// SetSketchName records I_SKETCH_NAME.
	SetSketchName(ctx context.Context, id uint8, name string) error

	// SetSketchVersion records I_SKETCH_VERSION.
	SetSketchVersion(ctx context.Context, id uint8, version string) error

	// SetBatteryLevel records I_BATTERY_LEVEL.
	SetBatteryLevel(ctx context.Context, id uint8, level int) error

	// PresentSensor creates or updates a child sensor presentation.
	PresentSensor(ctx context.Context, s Sensor) error

	// SetSensorValue records the latest value of a child sensor.
	SetSensorValue(ctx context.Context, s Sensor) error

	// GetByID returns a node with its sensors, or ErrNodeNotFound.
	GetByID(ctx context.Context, id uint8) (*Node, error)

	// List returns all nodes ordered by id.
	List(ctx context.Context) ([]Node, error)

	// Count returns the number of known nodes.
	Count(ctx context.Context) (int, error)

	// Delete removes a node and its sensors.
	Delete(ctx context.Context, id uint8) error
}

// SQLiteRepository implements Repository on the node registry schema.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // Format is controlled
	return t
}

// TouchNode creates the node if needed and optionally bumps last_seen.
func (r *SQLiteRepository) TouchNode(ctx context.Context, id uint8, at time.Time, seen bool) (bool, error) {
	ts := formatTime(at)

	if seen {
		res, err := r.db.ExecContext(ctx, "UPDATE nodes SET last_seen = ? WHERE node_id = ?", ts, id)
		if err != nil {
			return false, fmt.Errorf("updating node %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 { //nolint:errcheck // sqlite3 always reports rows affected
			return false, nil
		}
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO nodes (node_id, first_seen, last_seen) VALUES (?, ?, ?) ON CONFLICT(node_id) DO NOTHING",
		id, ts, ts)
	if err != nil {
		return false, fmt.Errorf("inserting node %d: %w", id, err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // sqlite3 always reports rows affected
	return n > 0, nil
}

// SetNodeType records the node presentation.
func (r *SQLiteRepository) SetNodeType(ctx context.Context, id uint8, nodeType, libraryVersion string) error {
	return r.updateNode(ctx, id, "UPDATE nodes SET node_type = ?, library_version = ? WHERE node_id = ?",
		nodeType, libraryVersion, id)
}

// SetSketchName records I_SKETCH_NAME.
func (r *SQLiteRepository) SetSketchName(ctx context.Context, id uint8, name string) error {
	return r.updateNode(ctx, id, "UPDATE nodes SET sketch_name = ? WHERE node_id = ?", name, id)
}

// SetSketchVersion records I_SKETCH_VERSION.
func (r *SQLiteRepository) SetSketchVersion(ctx context.Context, id uint8, version string) error {
	return r.updateNode(ctx, id, "UPDATE nodes SET sketch_version = ? WHERE node_id = ?", version, id)
}

// SetBatteryLevel records I_BATTERY_LEVEL.
func (r *SQLiteRepository) SetBatteryLevel(ctx context.Context, id uint8, level int) error {
	return r.updateNode(ctx, id, "UPDATE nodes SET battery_level = ? WHERE node_id = ?", level, id)
}

func (r *SQLiteRepository) updateNode(ctx context.Context, id uint8, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating node %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
		return ErrNodeNotFound
	}
	return nil
}

// PresentSensor creates or updates a child sensor presentation.
func (r *SQLiteRepository) PresentSensor(ctx context.Context, s Sensor) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sensors (node_id, sensor_id, sensor_type, description, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id, sensor_id) DO UPDATE SET
			sensor_type = excluded.sensor_type,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		s.NodeID, s.ID, s.Type, s.Description, formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("presenting sensor %d/%d: %w", s.NodeID, s.ID, err)
	}
	return nil
}

// SetSensorValue records the latest value of a child sensor.
func (r *SQLiteRepository) SetSensorValue(ctx context.Context, s Sensor) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sensors (node_id, sensor_id, last_type, last_value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id, sensor_id) DO UPDATE SET
			last_type = excluded.last_type,
			last_value = excluded.last_value,
			updated_at = excluded.updated_at`,
		s.NodeID, s.ID, s.LastType, s.LastValue, formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("recording value of sensor %d/%d: %w", s.NodeID, s.ID, err)
	}
	return nil
}

const nodeColumns = `node_id, COALESCE(node_type, ''), COALESCE(library_version, ''),
	COALESCE(sketch_name, ''), COALESCE(sketch_version, ''), battery_level, first_seen, last_seen`

const sensorColumns = `node_id, sensor_id, COALESCE(sensor_type, ''), COALESCE(description, ''),
	COALESCE(last_type, ''), COALESCE(last_value, ''), updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (Node, error) {
	var (
		n                   Node
		battery             sql.NullInt64
		firstSeen, lastSeen string
	)
	if err := row.Scan(&n.ID, &n.Type, &n.LibraryVersion, &n.SketchName, &n.SketchVersion,
		&battery, &firstSeen, &lastSeen); err != nil {
		return Node{}, err
	}
	if battery.Valid {
		level := int(battery.Int64)
		n.BatteryLevel = &level
	}
	n.FirstSeen = parseTime(firstSeen)
	n.LastSeen = parseTime(lastSeen)
	return n, nil
}

func scanSensor(row scanner) (Sensor, error) {
	var (
		s         Sensor
		updatedAt string
	)
	if err := row.Scan(&s.NodeID, &s.ID, &s.Type, &s.Description, &s.LastType, &s.LastValue, &updatedAt); err != nil {
		return Sensor{}, err
	}
	s.UpdatedAt = parseTime(updatedAt)
	return s, nil
}

// GetByID returns a node with its sensors.
func (r *SQLiteRepository) GetByID(ctx context.Context, id uint8) (*Node, error) {
	n, err := scanNode(r.db.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE node_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying node %d: %w", id, err)
	}

	sensors, err := r.sensors(ctx, "WHERE node_id = ?", id)
	if err != nil {
		return nil, err
	}
	n.Sensors = sensors[id]
	return &n, nil
}

// List returns all nodes ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Node, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+nodeColumns+" FROM nodes ORDER BY node_id")
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	rows.Close() //nolint:errcheck,gosec // Release the single connection before the next query

	sensors, err := r.sensors(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		nodes[i].Sensors = sensors[nodes[i].ID]
	}
	return nodes, nil
}

func (r *SQLiteRepository) sensors(ctx context.Context, where string, args ...any) (map[uint8][]Sensor, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sensorColumns+" FROM sensors "+where+" ORDER BY node_id, sensor_id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	byNode := make(map[uint8][]Sensor)
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sensor: %w", err)
		}
		byNode[s.NodeID] = append(byNode[s.NodeID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensors: %w", err)
	}
	return byNode, nil
}

// Count returns the number of known nodes.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting nodes: %w", err)
	}
	return n, nil
}

// Delete removes a node and, through the foreign key, its sensors.
func (r *SQLiteRepository) Delete(ctx context.Context, id uint8) error {
	return r.updateNode(ctx, id, "DELETE FROM nodes WHERE node_id = ?", id)
}
