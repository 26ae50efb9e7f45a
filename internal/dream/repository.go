package dream

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/dreamjournal/internal/database"
)

//go:generate mockgen -source=repository.go -destination=../mocks/dream/mock_repository.go -package=mock_dream

// Repository defines the operations on dreams and their emotion tags.
type Repository interface {
	ListByMonth(ctx context.Context, year, month int) ([]Summary, error)
	FindByID(ctx context.Context, id int64) (*Record, error)
	FindByEmotion(ctx context.Context, label string) ([]Dream, error)
	FindAll(ctx context.Context) ([]Record, error)
	Create(ctx context.Context, payload Payload) (*Record, error)
	Update(ctx context.Context, id int64, payload Payload) (*Record, error)
	Delete(ctx context.Context, id int64) (*Record, error)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

// DBRepository implements Repository on top of sqlite.
type DBRepository struct {
	db *sqlx.DB
}

// NewDBRepository creates a new DBRepository.
func NewDBRepository(db *sqlx.DB) *DBRepository {
	return &DBRepository{db: db}
}

const (
	insertDream = `INSERT INTO dreams
		(name, description, dream_date, lucidity, sleep_duration, recurring, room_temp, stress_before_sleep)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	updateDream = `UPDATE dreams SET
		name = ?, description = ?, dream_date = ?, lucidity = ?,
		sleep_duration = ?, recurring = ?, room_temp = ?, stress_before_sleep = ?
		WHERE id = ?`
	insertEmotion = "INSERT INTO emotions (dream_id, emotion) VALUES (?, ?)"
)

// ListByMonth returns summaries of the dreams dated within the given month,
// each with its emotion labels attached.
func (r *DBRepository) ListByMonth(ctx context.Context, year, month int) ([]Summary, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("list dreams for %d-%d: %w", year, month, ErrInvalidMonth)
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	summaries := []Summary{}
	err := r.db.SelectContext(ctx, &summaries,
		"SELECT id, name, dream_date FROM dreams WHERE dream_date BETWEEN ? AND ? ORDER BY dream_date, id",
		first.Format(DateLayout), last.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("db.SelectContext(dreams by month) > %w", err)
	}

	ids := make([]int64, len(summaries))
	for i := range summaries {
		ids[i] = summaries[i].ID
	}
	emotions, err := loadEmotions(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].Emotions = labelsOf(emotions, summaries[i].ID)
	}
	return summaries, nil
}

// FindByID returns the dream with its emotion labels, or ErrNotFound.
func (r *DBRepository) FindByID(ctx context.Context, id int64) (*Record, error) {
	return findRecord(ctx, r.db, id)
}

// FindByEmotion returns every dream tagged with label, each once.
// The returned dreams carry no emotion lists.
func (r *DBRepository) FindByEmotion(ctx context.Context, label string) ([]Dream, error) {
	dreams := []Dream{}
	query := `SELECT DISTINCT d.* FROM dreams d
		JOIN emotions e ON e.dream_id = d.id
		WHERE e.emotion = ?
		ORDER BY d.id`
	if err := r.db.SelectContext(ctx, &dreams, query, label); err != nil {
		return nil, fmt.Errorf("db.SelectContext(dreams by emotion) > %w", err)
	}
	return dreams, nil
}

// FindAll returns all dreams with their emotion labels ordered by id.
func (r *DBRepository) FindAll(ctx context.Context) ([]Record, error) {
	var dreams []Dream
	if err := r.db.SelectContext(ctx, &dreams, "SELECT * FROM dreams ORDER BY id"); err != nil {
		return nil, fmt.Errorf("db.SelectContext(dreams) > %w", err)
	}

	ids := make([]int64, len(dreams))
	for i := range dreams {
		ids[i] = dreams[i].ID
	}
	emotions, err := loadEmotions(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(dreams))
	for i := range dreams {
		records[i] = Record{Dream: dreams[i], Emotions: labelsOf(emotions, dreams[i].ID)}
	}
	return records, nil
}

// Create inserts a dream and its emotion labels in a transaction.
func (r *DBRepository) Create(ctx context.Context, payload Payload) (*Record, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("validate dream: %w", err)
	}

	var record *Record
	err := database.RunInTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, insertDream, payload.args()...)
		if err != nil {
			return fmt.Errorf("tx.ExecContext(insert dream) > %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("result.LastInsertId() > %w", err)
		}
		if err := insertEmotions(ctx, tx, id, payload.Emotions); err != nil {
			return err
		}
		record, err = findRecord(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Update overwrites every field of the dream and replaces its emotion labels.
func (r *DBRepository) Update(ctx context.Context, id int64, payload Payload) (*Record, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("validate dream: %w", err)
	}

	var record *Record
	err := database.RunInTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, updateDream, append(payload.args(), id)...)
		if err != nil {
			return fmt.Errorf("tx.ExecContext(update dream) > %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("result.RowsAffected() > %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("dream %d: %w", id, ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM emotions WHERE dream_id = ?", id); err != nil {
			return fmt.Errorf("tx.ExecContext(delete emotions) > %w", err)
		}
		if err := insertEmotions(ctx, tx, id, payload.Emotions); err != nil {
			return err
		}
		record, err = findRecord(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Delete removes the dream and, through the foreign key cascade, its emotion
// tags. The returned record is the state captured at delete time.
func (r *DBRepository) Delete(ctx context.Context, id int64) (*Record, error) {
	var record *Record
	err := database.RunInTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		emotions, err := loadEmotions(ctx, tx, []int64{id})
		if err != nil {
			return err
		}

		var d Dream
		err = sqlx.GetContext(ctx, tx, &d, "DELETE FROM dreams WHERE id = ? RETURNING *", id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("dream %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("tx.GetContext(delete dream) > %w", err)
		}
		record = &Record{Dream: d, Emotions: labelsOf(emotions, id)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func findRecord(ctx context.Context, q queryer, id int64) (*Record, error) {
	var d Dream
	err := sqlx.GetContext(ctx, q, &d, "SELECT * FROM dreams WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dream %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("db.GetContext(dream) > %w", err)
	}

	emotions, err := loadEmotions(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	return &Record{Dream: d, Emotions: labelsOf(emotions, id)}, nil
}

func insertEmotions(ctx context.Context, tx *sqlx.Tx, dreamID int64, labels []string) error {
	for _, label := range labels {
		if _, err := tx.ExecContext(ctx, insertEmotion, dreamID, label); err != nil {
			return fmt.Errorf("tx.ExecContext(insert emotion) > %w", err)
		}
	}
	return nil
}

// loadEmotions returns the labels of the given dreams keyed by dream id,
// each list in insertion order.
func loadEmotions(ctx context.Context, q queryer, dreamIDs []int64) (map[int64][]string, error) {
	result := make(map[int64][]string, len(dreamIDs))
	if len(dreamIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In("SELECT id, dream_id, emotion FROM emotions WHERE dream_id IN (?) ORDER BY id", dreamIDs)
	if err != nil {
		return nil, fmt.Errorf("sqlx.In(emotions) > %w", err)
	}
	var rows []Emotion
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext(emotions) > %w", err)
	}
	for _, e := range rows {
		result[e.DreamID] = append(result[e.DreamID], e.Label)
	}
	return result, nil
}

func labelsOf(emotions map[int64][]string, dreamID int64) []string {
	if labels, ok := emotions[dreamID]; ok {
		return labels
	}
	return []string{}
}
