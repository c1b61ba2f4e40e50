package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/db"
	"github.com/MosinFAM/forum-moderation/internal/moderation"
	"github.com/MosinFAM/forum-moderation/internal/models"

	"github.com/google/uuid"
	"github.com/pressly/goose"
	log "github.com/sirupsen/logrus"
)

const selectNodes = `SELECT id, post_id, parent_id, author, title, content, status, created_at FROM nodes`

const deleteSubtree = `
WITH RECURSIVE subtree(id) AS (
	SELECT id FROM nodes WHERE post_id = $1 AND id = $2 AND id <> post_id
	UNION ALL
	SELECT n.id FROM nodes n JOIN subtree s ON n.parent_id = s.id WHERE n.post_id = $1
)
DELETE FROM nodes WHERE post_id = $1 AND id IN (SELECT id FROM subtree)`

// execer - общее у *sql.DB и *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStorage - хранилище в PostgreSQL или SQLite. Узлы лежат плоской таблицей,
// деревья собираются через moderation.BuildTree.
type SQLStorage struct {
	DB     *sql.DB
	Driver string
}

// NewSQLStorage создаёт экземпляр SQL-хранилища
func NewSQLStorage(conn *sql.DB, driver string) *SQLStorage {
	return &SQLStorage{DB: conn, Driver: driver}
}

// Migrate накатывает миграции goose из dir
func (s *SQLStorage) Migrate(dir string) error {
	dialect := "postgres"
	if s.Driver == db.DriverSQLite {
		dialect = "sqlite3"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(s.DB, dir); err != nil {
		return fmt.Errorf("apply migrations from %s: %w", dir, err)
	}
	log.WithField("dir", dir).Info("Migrations applied")
	return nil
}

// GetModerationPosts возвращает все деревья в порядке создания
func (s *SQLStorage) GetModerationPosts(ctx context.Context) ([]models.Node, error) {
	log.Debug("Fetching moderation posts from database")
	rows, err := s.query(ctx, selectNodes+` ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	posts, err := moderation.BuildTree(rows)
	if errors.Is(err, moderation.ErrMalformedTree) && posts != nil {
		// Одна битая строка не должна прятать всю очередь
		log.WithError(err).Warn("Skipping unreachable node rows")
		return posts, nil
	}
	return posts, err
}

// AddPost добавляет новый пост в БД
func (s *SQLStorage) AddPost(ctx context.Context, author, title, content string) (models.Node, error) {
	if err := validateNode(author, title, content); err != nil {
		return models.Node{}, err
	}

	post := models.Node{
		ID:      uuid.New().String(),
		Author:  author,
		Title:   title,
		Content: content,
		Date:    time.Now().UTC(),
		Status:  models.StatusPending,
		Replies: []models.Node{},
	}
	post.PostID = post.ID

	if err := s.insert(ctx, s.DB, post); err != nil {
		return models.Node{}, err
	}
	log.WithField("post_id", post.ID).Info("Post added")
	return post, nil
}

// AddReply проверяет пост и родителя и вставляет ответ в одной транзакции.
// Внешний ключ (post_id, parent_id) не даёт ответу пережить удалённого родителя.
func (s *SQLStorage) AddReply(ctx context.Context, postID string, parentID *string, author, content string) (models.Node, error) {
	if err := validateNode(author, "", content); err != nil {
		return models.Node{}, err
	}

	reply := models.Node{
		ID:       uuid.New().String(),
		Author:   author,
		Content:  content,
		Date:     time.Now().UTC(),
		Status:   models.StatusPending,
		Replies:  []models.Node{},
		PostID:   postID,
		ParentID: parentID,
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Node{}, err
	}
	defer tx.Rollback()

	if err := s.exists(ctx, tx, postID, nil); err != nil {
		return models.Node{}, err
	}
	if parentID != nil {
		if err := s.exists(ctx, tx, postID, parentID); err != nil {
			return models.Node{}, err
		}
	}
	if err := s.insert(ctx, tx, reply); err != nil {
		tx.Rollback()
		// Родителя могли удалить между проверкой и вставкой
		if gone := s.missing(ctx, postID, parentID); gone != nil {
			return models.Node{}, gone
		}
		return models.Node{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Node{}, err
	}

	log.WithFields(log.Fields{"post_id": postID, "reply_id": reply.ID}).Info("Reply added")
	return reply, nil
}

func (s *SQLStorage) SetPostStatus(ctx context.Context, postID string, status models.Status) (models.Node, error) {
	if !status.Valid() {
		return models.Node{}, fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE nodes SET status = $1 WHERE post_id = $2 AND id = $2`, string(status), postID)
	if err != nil {
		log.WithError(err).WithField("post_id", postID).Error("Failed to update post status")
		return models.Node{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Node{}, fmt.Errorf("%w: %s", moderation.ErrPostNotFound, postID)
	}
	return s.loadNode(ctx, postID, nil)
}

func (s *SQLStorage) SetReplyStatus(ctx context.Context, postID, replyID string, status models.Status) (models.Node, error) {
	if !status.Valid() {
		return models.Node{}, fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}
	if err := s.exists(ctx, s.DB, postID, nil); err != nil {
		return models.Node{}, err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE nodes SET status = $1 WHERE post_id = $2 AND id = $3 AND id <> post_id`,
		string(status), postID, replyID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"post_id": postID, "reply_id": replyID}).Error("Failed to update reply status")
		return models.Node{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Node{}, fmt.Errorf("%w: %s/%s", moderation.ErrReplyNotFound, postID, replyID)
	}
	return s.loadNode(ctx, postID, &replyID)
}

// DeletePost удаляет пост вместе со всеми ответами
func (s *SQLStorage) DeletePost(ctx context.Context, postID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM nodes WHERE post_id = $1`, postID)
	if err != nil {
		log.WithError(err).WithField("post_id", postID).Error("Failed to delete post")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", moderation.ErrPostNotFound, postID)
	}
	return nil
}

// DeleteReply удаляет ответ и всё его поддерево рекурсивным CTE
func (s *SQLStorage) DeleteReply(ctx context.Context, postID, replyID string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.exists(ctx, tx, postID, nil); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, deleteSubtree, postID, replyID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"post_id": postID, "reply_id": replyID}).Error("Failed to delete reply")
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", moderation.ErrReplyNotFound, postID, replyID)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	log.WithFields(log.Fields{"post_id": postID, "reply_id": replyID, "rows": n}).Info("Reply deleted")
	return nil
}

// insert пишет узел; ответ первого уровня хранит parent_id = post_id,
// чтобы внешний ключ покрывал все ответы
func (s *SQLStorage) insert(ctx context.Context, q execer, n models.Node) error {
	parentID := n.ParentID
	if parentID == nil && n.PostID != n.ID {
		parentID = &n.PostID
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO nodes (id, post_id, parent_id, author, title, content, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.PostID, parentID, n.Author, n.Title, n.Content, string(n.Status), n.Date)
	if err != nil {
		log.WithError(err).WithField("id", n.ID).Error("DB insert error")
	}
	return err
}

// exists проверяет наличие поста (replyID == nil) или ответа внутри поста
func (s *SQLStorage) exists(ctx context.Context, q execer, postID string, replyID *string) error {
	var one int
	var err error
	if replyID == nil {
		err = q.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE post_id = $1 AND id = $1`, postID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", moderation.ErrPostNotFound, postID)
		}
		return err
	}
	err = q.QueryRowContext(ctx,
		`SELECT 1 FROM nodes WHERE post_id = $1 AND id = $2 AND id <> post_id`, postID, *replyID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", moderation.ErrReplyNotFound, postID, *replyID)
	}
	return err
}

// missing возвращает ошибку not found, если пост или родитель уже удалены
func (s *SQLStorage) missing(ctx context.Context, postID string, parentID *string) error {
	ids := []*string{nil}
	if parentID != nil {
		ids = append(ids, parentID)
	}
	for _, id := range ids {
		err := s.exists(ctx, s.DB, postID, id)
		if errors.Is(err, moderation.ErrPostNotFound) || errors.Is(err, moderation.ErrReplyNotFound) {
			return err
		}
	}
	return nil
}

// loadNode собирает дерево одного поста и находит в нём узел
func (s *SQLStorage) loadNode(ctx context.Context, postID string, replyID *string) (models.Node, error) {
	rows, err := s.query(ctx, selectNodes+` WHERE post_id = $1 ORDER BY created_at, id`, postID)
	if err != nil {
		return models.Node{}, err
	}
	tree, err := moderation.BuildTree(rows)
	if err != nil {
		return models.Node{}, err
	}
	return moderation.Find(tree, postID, replyID)
}

func (s *SQLStorage) query(ctx context.Context, query string, args ...any) ([]models.Node, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Error fetching nodes")
		return nil, err
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		var (
			n        models.Node
			parentID sql.NullString
			status   string
		)
		if err := rows.Scan(&n.ID, &n.PostID, &parentID, &n.Author, &n.Title, &n.Content, &status, &n.Date); err != nil {
			log.WithError(err).Error("Error scanning node row")
			return nil, err
		}
		if parentID.Valid && parentID.String != n.PostID {
			p := parentID.String
			n.ParentID = &p
		}
		if n.Status, err = models.ParseStatus(status); err != nil {
			return nil, err
		}
		n.Date = n.Date.UTC()
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
