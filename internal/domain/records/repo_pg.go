package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medchain/medchain/pkg/pagination"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

// NewPatientRepo returns a Repository backed by PostgreSQL.
func NewPatientRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO patient_record (patient_id, owner_id, created_at) VALUES ($1, $2, $3)`,
		p.PatientID, p.OwnerID, p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePatient
		}
		return fmt.Errorf("insert patient: %w", err)
	}

	if err := insertFiles(ctx, tx, p.PatientID, p.Content, 0); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, p.PatientID, p.History); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *patientRepoPG) Get(ctx context.Context, patientID string) (*Patient, error) {
	p := &Patient{SharedWith: map[string][]uuid.UUID{}}
	err := r.pool.QueryRow(ctx,
		`SELECT patient_id, owner_id, created_at FROM patient_record WHERE patient_id = $1`,
		patientID).Scan(&p.PatientID, &p.OwnerID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select patient: %w", err)
	}

	if err := r.loadChildren(ctx, []*Patient{p}, true); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *patientRepoPG) List(ctx context.Context, q ListQuery) ([]*Patient, int, error) {
	where, args := listPredicate(q)

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM patient_record pr `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	orderCol := "pr.created_at"
	if q.SortBy == pagination.SortByPatientID {
		orderCol = "pr.patient_id"
	}
	dir := "DESC"
	if q.SortOrder == "asc" {
		dir = "ASC"
	}

	query := fmt.Sprintf(
		`SELECT pr.patient_id, pr.owner_id, pr.created_at FROM patient_record pr %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		where, orderCol, dir, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select patients: %w", err)
	}
	patients, err := scanPatients(rows)
	if err != nil {
		return nil, 0, err
	}

	// List responses skip history; files and grants are needed for content
	// visibility.
	if err := r.loadChildren(ctx, patients, false); err != nil {
		return nil, 0, err
	}
	return patients, total, nil
}

func listPredicate(q ListQuery) (string, []interface{}) {
	var conds []string
	var args []interface{}

	switch q.Scope {
	case ScopeMine:
		args = append(args, q.ViewerID)
		conds = append(conds, fmt.Sprintf("pr.owner_id = $%d", len(args)))
	case ScopeShared:
		args = append(args, q.ViewerID)
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM record_share rs WHERE rs.patient_id = pr.patient_id AND rs.user_id = $%d)", len(args)))
	}
	if q.Filter != "" {
		args = append(args, "%"+escapeLike(q.Filter)+"%")
		conds = append(conds, fmt.Sprintf("pr.patient_id ILIKE $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters so a filter of "50%" matches
// record ids containing that literal text.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM patient_record`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

func (r *patientRepoPG) Recent(ctx context.Context, n int) ([]*Patient, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pr.patient_id, pr.owner_id, pr.created_at FROM patient_record pr ORDER BY pr.created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("select recent: %w", err)
	}
	patients, err := scanPatients(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, patients, false); err != nil {
		return nil, err
	}
	return patients, nil
}

func (r *patientRepoPG) AddFiles(ctx context.Context, patientID string, files []File, events []HistoryEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var next int
	if err := tx.QueryRow(ctx,
		`SELECT coalesce(max(position), -1) + 1 FROM record_file WHERE patient_id = $1`,
		patientID).Scan(&next); err != nil {
		return fmt.Errorf("file position: %w", err)
	}
	if err := insertFiles(ctx, tx, patientID, files, next); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, patientID, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *patientRepoPG) UpdateFile(ctx context.Context, patientID string, fileID uuid.UUID, name, dataType string, ev HistoryEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE record_file SET name = $1, data_type = $2 WHERE id = $3 AND patient_id = $4`,
		name, dataType, fileID, patientID)
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := insertHistory(ctx, tx, patientID, []HistoryEvent{ev}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *patientRepoPG) RemoveFiles(ctx context.Context, patientID string, fileIDs []uuid.UUID, events []HistoryEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Share rows referencing the files go with them via ON DELETE CASCADE;
	// the explicit delete keeps the intent visible and covers grants on
	// records migrated before the constraint existed.
	if _, err := tx.Exec(ctx,
		`DELETE FROM record_share WHERE patient_id = $1 AND file_id = ANY($2)`,
		patientID, fileIDs); err != nil {
		return fmt.Errorf("delete share rows: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM record_file WHERE patient_id = $1 AND id = ANY($2)`,
		patientID, fileIDs); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}
	if err := insertHistory(ctx, tx, patientID, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *patientRepoPG) SetGrant(ctx context.Context, patientID string, userID uuid.UUID, fileIDs []uuid.UUID, clearRequest bool, events []HistoryEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM record_share WHERE patient_id = $1 AND user_id = $2`,
		patientID, userID); err != nil {
		return fmt.Errorf("clear grant: %w", err)
	}
	for _, fileID := range fileIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO record_share (patient_id, user_id, file_id) VALUES ($1, $2, $3)`,
			patientID, userID, fileID); err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}
	}
	if clearRequest {
		if _, err := tx.Exec(ctx,
			`DELETE FROM record_access_request WHERE patient_id = $1 AND user_id = $2`,
			patientID, userID); err != nil {
			return fmt.Errorf("clear request: %w", err)
		}
	}
	if err := insertHistory(ctx, tx, patientID, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *patientRepoPG) AddAccessRequest(ctx context.Context, patientID string, userID uuid.UUID, ev HistoryEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO record_access_request (patient_id, user_id) VALUES ($1, $2)`,
		patientID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("insert request: %w", err)
	}
	if err := insertHistory(ctx, tx, patientID, []HistoryEvent{ev}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *patientRepoPG) RemoveAccessRequest(ctx context.Context, patientID string, userID uuid.UUID, ev HistoryEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM record_access_request WHERE patient_id = $1 AND user_id = $2`,
		patientID, userID)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRequest
	}
	if err := insertHistory(ctx, tx, patientID, []HistoryEvent{ev}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *patientRepoPG) TransferOwnership(ctx context.Context, patientID string, newOwnerID uuid.UUID, ev HistoryEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE patient_record SET owner_id = $1 WHERE patient_id = $2`,
		newOwnerID, patientID)
	if err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	// The new owner sees everything; a leftover grant or request in their
	// name is stale.
	if _, err := tx.Exec(ctx,
		`DELETE FROM record_share WHERE patient_id = $1 AND user_id = $2`,
		patientID, newOwnerID); err != nil {
		return fmt.Errorf("clear new owner grant: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM record_access_request WHERE patient_id = $1 AND user_id = $2`,
		patientID, newOwnerID); err != nil {
		return fmt.Errorf("clear new owner request: %w", err)
	}
	if err := insertHistory(ctx, tx, patientID, []HistoryEvent{ev}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertFiles(ctx context.Context, tx pgx.Tx, patientID string, files []File, startPos int) error {
	for i, f := range files {
		if _, err := tx.Exec(ctx,
			`INSERT INTO record_file (id, patient_id, name, data_type, base64, ipfs_cid, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			f.ID, patientID, f.Name, f.DataType, f.Base64, f.IpfsCID, startPos+i); err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, patientID string, events []HistoryEvent) error {
	for _, ev := range events {
		if _, err := tx.Exec(ctx,
			`INSERT INTO record_history (patient_id, event_type, actor, target, subject, counterparty, file_name, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			patientID, ev.EventType, ev.By, ev.To, ev.For, ev.With, ev.FileName, ev.Timestamp); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}
	return nil
}

func scanPatients(rows pgx.Rows) ([]*Patient, error) {
	defer rows.Close()
	var out []*Patient
	for rows.Next() {
		p := &Patient{SharedWith: map[string][]uuid.UUID{}}
		if err := rows.Scan(&p.PatientID, &p.OwnerID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// loadChildren attaches files, share grants, access requests and (optionally)
// history to the given patients with one query per child table.
func (r *patientRepoPG) loadChildren(ctx context.Context, patients []*Patient, withHistory bool) error {
	if len(patients) == 0 {
		return nil
	}
	byID := make(map[string]*Patient, len(patients))
	ids := make([]string, 0, len(patients))
	for _, p := range patients {
		byID[p.PatientID] = p
		ids = append(ids, p.PatientID)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, patient_id, name, data_type, base64, ipfs_cid FROM record_file
		 WHERE patient_id = ANY($1) ORDER BY patient_id, position`, ids)
	if err != nil {
		return fmt.Errorf("select files: %w", err)
	}
	for rows.Next() {
		var f File
		var pid string
		if err := rows.Scan(&f.ID, &pid, &f.Name, &f.DataType, &f.Base64, &f.IpfsCID); err != nil {
			rows.Close()
			return fmt.Errorf("scan file: %w", err)
		}
		byID[pid].Content = append(byID[pid].Content, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT rs.patient_id, rs.user_id, rs.file_id FROM record_share rs
		 JOIN record_file rf ON rf.id = rs.file_id
		 WHERE rs.patient_id = ANY($1) ORDER BY rs.patient_id, rs.user_id, rf.position`, ids)
	if err != nil {
		return fmt.Errorf("select shares: %w", err)
	}
	for rows.Next() {
		var pid string
		var userID, fileID uuid.UUID
		if err := rows.Scan(&pid, &userID, &fileID); err != nil {
			rows.Close()
			return fmt.Errorf("scan share: %w", err)
		}
		p := byID[pid]
		key := userID.String()
		p.SharedWith[key] = append(p.SharedWith[key], fileID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT patient_id, user_id FROM record_access_request
		 WHERE patient_id = ANY($1) ORDER BY patient_id, requested_at`, ids)
	if err != nil {
		return fmt.Errorf("select requests: %w", err)
	}
	for rows.Next() {
		var pid string
		var userID uuid.UUID
		if err := rows.Scan(&pid, &userID); err != nil {
			rows.Close()
			return fmt.Errorf("scan request: %w", err)
		}
		byID[pid].AccessRequests = append(byID[pid].AccessRequests, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if !withHistory {
		return nil
	}
	rows, err = r.pool.Query(ctx,
		`SELECT patient_id, event_type, actor, target, subject, counterparty, file_name, created_at
		 FROM record_history WHERE patient_id = ANY($1) ORDER BY patient_id, id`, ids)
	if err != nil {
		return fmt.Errorf("select history: %w", err)
	}
	for rows.Next() {
		var pid string
		var ev HistoryEvent
		if err := rows.Scan(&pid, &ev.EventType, &ev.By, &ev.To, &ev.For, &ev.With, &ev.FileName, &ev.Timestamp); err != nil {
			rows.Close()
			return fmt.Errorf("scan history: %w", err)
		}
		byID[pid].History = append(byID[pid].History, ev)
	}
	rows.Close()
	return rows.Err()
}
