package structure

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/espalier/pkg/model"
)

// SQLiteProvider vends a tree stored as an adjacency list in a SQLite
// database. The expected schema:
//
//	CREATE TABLE nodes (
//	    id        TEXT PRIMARY KEY,
//	    parent_id TEXT,            -- NULL for the root
//	    name      TEXT NOT NULL,
//	    element   TEXT,
//	    file      TEXT,
//	    ord       INTEGER NOT NULL DEFAULT 0,
//	    version   INTEGER NOT NULL DEFAULT 0
//	);
//
// The database is opened read-only; another process owns writes and
// notifies the engine out of band.
type SQLiteProvider struct {
	db   *sql.DB
	path string
	root model.NodeID
}

// NewSQLiteProvider opens the database at path and locates the root row
// (the single row with a NULL parent_id).
func NewSQLiteProvider(path string) (*SQLiteProvider, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	var root string
	row := db.QueryRow(`SELECT id FROM nodes WHERE parent_id IS NULL LIMIT 1`)
	if err := row.Scan(&root); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot locate root node: %w", err)
	}

	return &SQLiteProvider{db: db, path: path, root: model.NodeID(root)}, nil
}

// Close closes the database connection.
func (p *SQLiteProvider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Path returns the database path.
func (p *SQLiteProvider) Path() string { return p.path }

// Root implements Provider.
func (p *SQLiteProvider) Root() model.NodeID { return p.root }

// Children implements Provider.
func (p *SQLiteProvider) Children(id model.NodeID) ([]model.NodeID, error) {
	if exists, err := p.exists(id); err != nil {
		return nil, err
	} else if !exists {
		return nil, fmt.Errorf("%s: %w", id, ErrNodeGone)
	}

	rows, err := p.db.Query(
		`SELECT id FROM nodes WHERE parent_id = ? ORDER BY ord, id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", id, err)
	}
	defer rows.Close()

	var ids []model.NodeID
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, err
		}
		ids = append(ids, model.NodeID(child))
	}
	return ids, rows.Err()
}

// Describe implements Provider.
func (p *SQLiteProvider) Describe(id model.NodeID) (model.Payload, error) {
	row := p.db.QueryRow(
		`SELECT name, element, file, version,
		        NOT EXISTS(SELECT 1 FROM nodes c WHERE c.parent_id = nodes.id)
		   FROM nodes WHERE id = ?`, string(id))

	var name string
	var element, file sql.NullString
	var version int64
	var leaf bool
	if err := row.Scan(&name, &element, &file, &version, &leaf); err != nil {
		if err == sql.ErrNoRows {
			return model.Payload{}, fmt.Errorf("%s: %w", id, ErrNodeGone)
		}
		return model.Payload{}, err
	}

	payload := model.Payload{Name: name, Version: uint64(version), Leaf: leaf}
	if element.Valid {
		payload.Element = element.String
	}
	if file.Valid {
		payload.File = file.String
	}
	return payload, nil
}

func (p *SQLiteProvider) exists(id model.NodeID) (bool, error) {
	var one int
	err := p.db.QueryRow(`SELECT 1 FROM nodes WHERE id = ?`, string(id)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
