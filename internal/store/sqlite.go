// internal/store/sqlite.go
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/otium-ai/ops-agent-api-server/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'operator',
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS connections (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	hostname        TEXT NOT NULL,
	username        TEXT NOT NULL,
	port            INTEGER NOT NULL,
	status          TEXT NOT NULL,
	connected_at    TIMESTAMP NOT NULL,
	disconnected_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_connections_user ON connections(user_id);

CREATE TABLE IF NOT EXISTS commands (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	connection_id     TEXT NOT NULL,
	request           TEXT NOT NULL,
	intent            TEXT,
	action            TEXT,
	risk_level        TEXT NOT NULL,
	status            TEXT NOT NULL,
	steps             TEXT NOT NULL,
	execution_results TEXT,
	created_at        TIMESTAMP NOT NULL,
	approved_at       TIMESTAMP,
	executed_at       TIMESTAMP,
	completed_at      TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_commands_user ON commands(user_id);

CREATE TABLE IF NOT EXISTS step_approvals (
	command_id  TEXT NOT NULL,
	step_index  INTEGER NOT NULL,
	approved    INTEGER NOT NULL,
	reason      TEXT,
	approved_by TEXT NOT NULL,
	approved_at TIMESTAMP NOT NULL,
	UNIQUE(command_id, step_index)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	action        TEXT NOT NULL,
	details       TEXT,
	command_id    TEXT,
	connection_id TEXT,
	success       INTEGER NOT NULL,
	created_at    TIMESTAMP NOT NULL
);
`

// SQLiteStore persists records in a SQLite database file. Plan steps and
// execution results are stored as JSON columns, matching their wire shape.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateUser(u *models.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.CreatedAt,
	)
	return mapUniqueErr(err)
}

func (s *SQLiteStore) GetUserByUsername(username string) (*models.User, error) {
	row := s.db.QueryRow(
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?`, username)
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) CountUsers() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) SaveConnection(c *models.Connection) error {
	_, err := s.db.Exec(
		`INSERT INTO connections (id, user_id, hostname, username, port, status, connected_at, disconnected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, disconnected_at = excluded.disconnected_at`,
		c.ID, c.UserID, c.Hostname, c.Username, c.Port, c.Status, c.ConnectedAt, c.DisconnectedAt,
	)
	return err
}

func (s *SQLiteStore) GetConnection(id string) (*models.Connection, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, hostname, username, port, status, connected_at, disconnected_at
		 FROM connections WHERE id = ?`, id)
	return scanConnection(row)
}

func (s *SQLiteStore) ListConnectionsByUser(userID string) ([]models.Connection, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, hostname, username, port, status, connected_at, disconnected_at
		 FROM connections WHERE user_id = ? ORDER BY connected_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Connection, 0)
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) MarkConnectionDisconnected(id string, at time.Time) error {
	res, err := s.db.Exec(
		`UPDATE connections SET status = ?, disconnected_at = ? WHERE id = ?`,
		models.ConnectionDisconnected, at, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

func (s *SQLiteStore) CreateCommand(cmd *models.CommandPlan) error {
	steps, err := json.Marshal(cmd.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	results, err := encodeAggregate(cmd.ExecutionResults)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO commands (id, user_id, connection_id, request, intent, action, risk_level, status,
		                       steps, execution_results, created_at, approved_at, executed_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.ID, cmd.UserID, cmd.ConnectionID, cmd.Request, cmd.Intent, cmd.Action, cmd.RiskLevel,
		cmd.Status, string(steps), results, cmd.CreatedAt, cmd.ApprovedAt, cmd.ExecutedAt, cmd.CompletedAt,
	)
	return mapUniqueErr(err)
}

func (s *SQLiteStore) GetCommand(id, userID string) (*models.CommandPlan, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, connection_id, request, intent, action, risk_level, status,
		        steps, execution_results, created_at, approved_at, executed_at, completed_at
		 FROM commands WHERE id = ? AND user_id = ?`, id, userID)
	return scanCommand(row)
}

func (s *SQLiteStore) ListCommandsByUser(userID string) ([]models.CommandPlan, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, connection_id, request, intent, action, risk_level, status,
		        steps, execution_results, created_at, approved_at, executed_at, completed_at
		 FROM commands WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.CommandPlan, 0)
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cmd)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) UpdateCommandStatus(id string, status models.CommandStatus, at time.Time) error {
	column := ""
	switch status {
	case models.StatusApproved:
		column = "approved_at"
	case models.StatusExecuting:
		column = "executed_at"
	case models.StatusCompleted, models.StatusFailed, models.StatusRejected:
		column = "completed_at"
	}

	var res sql.Result
	var err error
	if column != "" {
		res, err = s.db.Exec(
			`UPDATE commands SET status = ?, `+column+` = COALESCE(`+column+`, ?) WHERE id = ?`,
			status, at, id)
	} else {
		res, err = s.db.Exec(`UPDATE commands SET status = ? WHERE id = ?`, status, id)
	}
	if err != nil {
		return err
	}
	return requireRows(res)
}

func (s *SQLiteStore) UpdateExecutionResults(id string, agg *models.ExecutionAggregate) error {
	results, err := encodeAggregate(agg)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE commands SET execution_results = ? WHERE id = ?`, results, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

func (s *SQLiteStore) CreateStepApproval(a *models.StepApproval) error {
	_, err := s.db.Exec(
		`INSERT INTO step_approvals (command_id, step_index, approved, reason, approved_by, approved_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.CommandID, a.StepIndex, a.Approved, a.Reason, a.ApprovedBy, a.ApprovedAt,
	)
	return mapUniqueErr(err)
}

func (s *SQLiteStore) ListStepApprovals(commandID string) ([]models.StepApproval, error) {
	rows, err := s.db.Query(
		`SELECT command_id, step_index, approved, reason, approved_by, approved_at
		 FROM step_approvals WHERE command_id = ? ORDER BY step_index`, commandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.StepApproval, 0)
	for rows.Next() {
		var a models.StepApproval
		var reason sql.NullString
		if err := rows.Scan(&a.CommandID, &a.StepIndex, &a.Approved, &reason, &a.ApprovedBy, &a.ApprovedAt); err != nil {
			return nil, err
		}
		a.Reason = reason.String
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) AppendAudit(e *models.AuditEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_log (id, user_id, action, details, command_id, connection_id, success, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Action, string(details), e.CommandID, e.ConnectionID, e.Success, e.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable, for health reporting.
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var c models.Connection
	var disconnectedAt sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.Hostname, &c.Username, &c.Port, &c.Status, &c.ConnectedAt, &disconnectedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if disconnectedAt.Valid {
		c.DisconnectedAt = &disconnectedAt.Time
	}
	return &c, nil
}

func scanCommand(row rowScanner) (*models.CommandPlan, error) {
	var cmd models.CommandPlan
	var steps string
	var results sql.NullString
	var intent, action sql.NullString
	var approvedAt, executedAt, completedAt sql.NullTime

	err := row.Scan(&cmd.ID, &cmd.UserID, &cmd.ConnectionID, &cmd.Request, &intent, &action,
		&cmd.RiskLevel, &cmd.Status, &steps, &results, &cmd.CreatedAt, &approvedAt, &executedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	cmd.Intent = intent.String
	cmd.Action = action.String
	if err := json.Unmarshal([]byte(steps), &cmd.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps for command %s: %w", cmd.ID, err)
	}
	if results.Valid && results.String != "" {
		var agg models.ExecutionAggregate
		if err := json.Unmarshal([]byte(results.String), &agg); err != nil {
			return nil, fmt.Errorf("failed to decode execution results for command %s: %w", cmd.ID, err)
		}
		cmd.ExecutionResults = &agg
	}
	if approvedAt.Valid {
		cmd.ApprovedAt = &approvedAt.Time
	}
	if executedAt.Valid {
		cmd.ExecutedAt = &executedAt.Time
	}
	if completedAt.Valid {
		cmd.CompletedAt = &completedAt.Time
	}
	return &cmd, nil
}

func encodeAggregate(agg *models.ExecutionAggregate) (any, error) {
	if agg == nil {
		return nil, nil
	}
	data, err := json.Marshal(agg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execution results: %w", err)
	}
	return string(data), nil
}

func requireRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapUniqueErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicate
	}
	return err
}
