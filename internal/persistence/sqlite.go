package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codetrek/syntrix-go/internal/mutation"
	"github.com/codetrek/syntrix-go/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS mutation_batches (
	batch_id       INTEGER PRIMARY KEY,
	state          TEXT NOT NULL,
	commit_version INTEGER NOT NULL DEFAULT 0,
	mutations      BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS remote_documents (
	path     TEXT PRIMARY KEY,
	version  INTEGER NOT NULL,
	document BLOB
);
`

// SQLiteStaging stages engine state in a local sqlite database.
type SQLiteStaging struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the staging database at path.
func OpenSQLite(path string) (*SQLiteStaging, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize staging schema: %w", err)
	}
	return &SQLiteStaging{db: db}, nil
}

func (s *SQLiteStaging) StageBatch(b *mutation.Batch) error {
	blob, err := json.Marshal(b.Mutations)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO mutation_batches (batch_id, state, commit_version, mutations)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(batch_id) DO UPDATE SET state=excluded.state, commit_version=excluded.commit_version`,
		b.ID, string(b.State), b.CommitVersion, blob,
	)
	return err
}

func (s *SQLiteStaging) RemoveBatch(batchID int64) error {
	_, err := s.db.Exec(`DELETE FROM mutation_batches WHERE batch_id = ?`, batchID)
	return err
}

func (s *SQLiteStaging) LoadBatches() ([]*mutation.Batch, error) {
	rows, err := s.db.Query(
		`SELECT batch_id, state, commit_version, mutations FROM mutation_batches ORDER BY batch_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*mutation.Batch
	for rows.Next() {
		var (
			b     mutation.Batch
			state string
			blob  []byte
		)
		if err := rows.Scan(&b.ID, &state, &b.CommitVersion, &blob); err != nil {
			return nil, err
		}
		b.State = mutation.AckState(state)
		if err := json.Unmarshal(blob, &b.Mutations); err != nil {
			return nil, fmt.Errorf("corrupt staged batch %d: %w", b.ID, err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (s *SQLiteStaging) StageDocument(doc StagedDocument) error {
	var blob []byte
	if doc.Doc != nil {
		var err error
		blob, err = json.Marshal(doc.Doc)
		if err != nil {
			return err
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO remote_documents (path, version, document) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET version=excluded.version, document=excluded.document`,
		doc.Path, doc.Version, blob,
	)
	return err
}

func (s *SQLiteStaging) RemoveDocument(path string) error {
	_, err := s.db.Exec(`DELETE FROM remote_documents WHERE path = ?`, path)
	return err
}

func (s *SQLiteStaging) LoadDocuments() ([]StagedDocument, error) {
	rows, err := s.db.Query(`SELECT path, version, document FROM remote_documents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StagedDocument
	for rows.Next() {
		var (
			d    StagedDocument
			blob []byte
		)
		if err := rows.Scan(&d.Path, &d.Version, &blob); err != nil {
			return nil, err
		}
		if len(blob) > 0 {
			var doc model.Document
			if err := json.Unmarshal(blob, &doc); err != nil {
				return nil, fmt.Errorf("corrupt staged document %s: %w", d.Path, err)
			}
			d.Doc = &doc
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStaging) Close() error {
	return s.db.Close()
}
