package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sthao/quickform/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for form entries
type Repository struct {
	db *sqlx.DB
}

// NewRepository migrates the database at dbPath to the latest schema and opens it
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	if err := Migrate(dbPath); err != nil {
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	db, err := sqlx.Open("sqlite", dsn(dbPath))
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}
	// Single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("database_ping_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveRecord inserts a new entry (ID 0) or updates an existing one, and
// replaces its images and sections, all in one transaction. The assigned ids
// are written back onto rec.
func (r *Repository) SaveRecord(ctx context.Context, rec *FormRecord) (int64, error) {
	entry := &rec.Entry
	if entry.FormType == "" {
		entry.FormType = FormTypeTransfer
	}
	slog.Info("database_save_entry", "entry_id", entry.ID, "title", entry.Title, "form_type", entry.FormType,
		"image_count", len(rec.Images), "section_count", len(rec.Sections))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	id := entry.ID
	if id == 0 {
		id, err = insertEntry(ctx, tx, entry)
	} else {
		err = updateEntry(ctx, tx, entry)
	}
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM form_images WHERE form_entry_id = ?`, id); err != nil {
		slog.Error("database_delete_images_failed", "entry_id", id, "error", err)
		return 0, errors.Wrap(err, "failed to delete images")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stations_item_sections WHERE form_entry_id = ?`, id); err != nil {
		slog.Error("database_delete_sections_failed", "entry_id", id, "error", err)
		return 0, errors.Wrap(err, "failed to delete sections")
	}

	for i := range rec.Images {
		img := &rec.Images[i]
		img.FormEntryID = id
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO form_images (form_entry_id, image_type, image_data, section_index)
			VALUES (:form_entry_id, :image_type, :image_data, :section_index)
		`, img)
		if err != nil {
			slog.Error("database_insert_image_failed", "entry_id", id, "error", err)
			return 0, errors.Wrap(err, "failed to insert image")
		}
		if img.ID, err = res.LastInsertId(); err != nil {
			return 0, errors.Wrap(err, "failed to get image id")
		}
	}

	for i := range rec.Sections {
		sec := &rec.Sections[i]
		sec.FormEntryID = id
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO stations_item_sections
			    (form_entry_id, section_index, section_run_number, totes, add_ons, extra, print_name, signature)
			VALUES (:form_entry_id, :section_index, :section_run_number, :totes, :add_ons, :extra, :print_name, :signature)
		`, sec)
		if err != nil {
			slog.Error("database_insert_section_failed", "entry_id", id, "error", err)
			return 0, errors.Wrap(err, "failed to insert section")
		}
		if sec.ID, err = res.LastInsertId(); err != nil {
			return 0, errors.Wrap(err, "failed to get section id")
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return 0, errors.Wrap(err, "failed to commit transaction")
	}

	entry.ID = id
	slog.Info("database_entry_saved", "entry_id", id, "title", entry.Title)
	return id, nil
}

func insertEntry(ctx context.Context, tx *sqlx.Tx, e *FormEntry) (int64, error) {
	cols := entryColumns(e)
	names := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = c.name
		args[i] = c.value()
	}

	query := fmt.Sprintf(`INSERT INTO form_entries (%s) VALUES (%s)`,
		strings.Join(names, ", "), placeholders(len(cols)))
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error("database_insert_failed", "title", e.Title, "error", err)
		return 0, errors.Wrap(err, "failed to insert entry")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "title", e.Title, "error", err)
		return 0, errors.Wrap(err, "failed to get last insert id")
	}
	return id, nil
}

func updateEntry(ctx context.Context, tx *sqlx.Tx, e *FormEntry) error {
	cols := entryColumns(e)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = c.name + " = ?"
		args = append(args, c.value())
	}
	args = append(args, e.ID)

	query := fmt.Sprintf(`UPDATE form_entries SET %s, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		strings.Join(sets, ", "))
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error("database_update_failed", "entry_id", e.ID, "error", err)
		return errors.Wrap(err, "failed to update entry")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "entry_id", e.ID, "error", err)
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_entry_not_found_for_update", "entry_id", e.ID)
		return errors.Wrap(errors.ErrNotFound, fmt.Sprintf("entry id=%d", e.ID))
	}
	return nil
}

// GetRecord retrieves an entry with its images and sections
func (r *Repository) GetRecord(ctx context.Context, id int64) (*FormRecord, error) {
	records, err := r.GetRecords(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		slog.Info("database_entry_not_found", "entry_id", id)
		return nil, errors.Wrap(errors.ErrNotFound, fmt.Sprintf("entry id=%d", id))
	}
	return &records[0], nil
}

// GetRecords retrieves entries with their children in the order of ids.
// Duplicate ids are collapsed and unknown ids are skipped.
func (r *Repository) GetRecords(ctx context.Context, ids []int64) ([]FormRecord, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	slog.Info("database_query_entries", "entry_count", len(ids))

	cols := entryColumns(&FormEntry{})
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	query, args, err := sqlx.In(fmt.Sprintf(
		`SELECT id, %s, created_at, updated_at FROM form_entries WHERE id IN (?)`,
		strings.Join(names, ", ")), ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		slog.Error("database_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to query entries")
	}
	defer rows.Close()

	byID := make(map[int64]*FormRecord, len(ids))
	for rows.Next() {
		rec := &FormRecord{}
		e := &rec.Entry
		dest := []any{&e.ID}
		for _, c := range entryColumns(e) {
			dest = append(dest, c.dest())
		}
		dest = append(dest, &nullText{dst: &e.CreatedAt}, &nullText{dst: &e.UpdatedAt})
		if err := rows.Scan(dest...); err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		if e.FormType == "" {
			e.FormType = FormTypeTransfer
		}
		byID[e.ID] = rec
	}
	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}
	rows.Close()

	if len(byID) == 0 {
		return nil, nil
	}

	var images []FormImage
	if err := r.selectIn(ctx, &images, `
		SELECT id, form_entry_id, image_type, image_data, section_index
		FROM form_images WHERE form_entry_id IN (?) ORDER BY id
	`, ids); err != nil {
		return nil, errors.Wrap(err, "failed to query images")
	}
	for _, img := range images {
		if rec, ok := byID[img.FormEntryID]; ok {
			rec.Images = append(rec.Images, img)
		}
	}

	var sections []StationsItemSection
	if err := r.selectIn(ctx, &sections, `
		SELECT id, form_entry_id, section_index, section_run_number, totes, add_ons, extra, print_name, signature
		FROM stations_item_sections WHERE form_entry_id IN (?) ORDER BY section_index, id
	`, ids); err != nil {
		return nil, errors.Wrap(err, "failed to query sections")
	}
	for _, sec := range sections {
		if rec, ok := byID[sec.FormEntryID]; ok {
			rec.Sections = append(rec.Sections, sec)
		}
	}

	records := make([]FormRecord, 0, len(byID))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			records = append(records, *rec)
		}
	}

	slog.Info("database_query_entries_complete", "requested", len(ids), "found", len(records))
	return records, nil
}

func (r *Repository) selectIn(ctx context.Context, dest any, query string, ids []int64) error {
	q, args, err := sqlx.In(query, ids)
	if err != nil {
		return err
	}
	return r.db.SelectContext(ctx, dest, r.db.Rebind(q), args...)
}

// ListItems returns the lightweight list of saved entries, newest first
func (r *Repository) ListItems(ctx context.Context) ([]ListItem, error) {
	slog.Info("database_list_entries")

	var items []ListItem
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, entry_title, form_type,
		       CASE WHEN form_type = 'stations' THEN COALESCE(stations_run, '') ELSE COALESCE(pickup_run, '') END AS run,
		       CASE WHEN form_type = 'stations' THEN COALESCE(stations_facility_name, '') ELSE COALESCE(pickup_facility_name, '') END AS facility_name
		FROM form_entries ORDER BY id DESC
	`)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list entries")
	}

	slog.Info("database_list_complete", "entry_count", len(items))
	return items, nil
}

// ExistingIDs returns the subset of ids that exist, in the order given
func (r *Repository) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var found []int64
	if err := r.selectIn(ctx, &found, `SELECT id FROM form_entries WHERE id IN (?)`, ids); err != nil {
		slog.Error("database_existing_ids_failed", "error", err)
		return nil, errors.Wrap(err, "failed to query ids")
	}

	present := make(map[int64]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	out := make([]int64, 0, len(found))
	for _, id := range ids {
		if present[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// DeleteByIDs deletes entries by id. Images and sections go with them via
// ON DELETE CASCADE. It returns the number of entries removed.
func (r *Repository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	slog.Info("database_delete_entries", "entry_ids", ids)

	query, args, err := sqlx.In(`DELETE FROM form_entries WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "failed to build query")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		slog.Error("database_delete_failed", "entry_ids", ids, "error", err)
		return 0, errors.Wrap(err, "failed to delete entries")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return 0, errors.Wrap(err, "failed to commit transaction")
	}

	slog.Info("database_entries_deleted", "deleted", rows)
	return rows, nil
}

// CountByTitlePrefix counts entries whose title starts with prefix
func (r *Repository) CountByTitlePrefix(ctx context.Context, prefix string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM form_entries WHERE entry_title LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil && err != sql.ErrNoRows {
		slog.Error("database_count_failed", "prefix", prefix, "error", err)
		return 0, errors.Wrap(err, "failed to count entries")
	}
	return count, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
