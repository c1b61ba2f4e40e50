package storage

import (
	"context"
	"testing"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/db"
	"github.com/MosinFAM/forum-moderation/internal/moderation"
	"github.com/MosinFAM/forum-moderation/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStorage(t *testing.T) *SQLStorage {
	t.Helper()
	conn, err := db.Connect(db.DriverSQLite, "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := NewSQLStorage(conn, db.DriverSQLite)
	require.NoError(t, store.Migrate("../../migrations"))
	return store
}

func TestSQLStorage_Tree(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStorage(t)

	post, err := store.AddPost(ctx, "ann", "Lisbon tour", "Any tips?")
	require.NoError(t, err)
	first, err := store.AddReply(ctx, post.ID, nil, "bob", "Visit Belem")
	require.NoError(t, err)
	_, err = store.AddReply(ctx, post.ID, &first.ID, "eve", "And Sintra")
	require.NoError(t, err)
	_, err = store.AddReply(ctx, post.ID, nil, "kim", "Take the tram")
	require.NoError(t, err)

	posts, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Lisbon tour", posts[0].Title)
	assert.Equal(t, 4, moderation.CountAll(posts))
	require.Len(t, posts[0].Replies, 2)
	assert.Equal(t, first.ID, posts[0].Replies[0].ID)
	require.Len(t, posts[0].Replies[0].Replies, 1)
	assert.Equal(t, "And Sintra", posts[0].Replies[0].Replies[0].Content)
}

func TestSQLStorage_AddReply_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStorage(t)

	_, err := store.AddReply(ctx, "ghost", nil, "bob", "hello")
	assert.ErrorIs(t, err, moderation.ErrPostNotFound)

	post, err := store.AddPost(ctx, "ann", "Post", "Content")
	require.NoError(t, err)
	ghost := "ghost"
	_, err = store.AddReply(ctx, post.ID, &ghost, "bob", "hello")
	assert.ErrorIs(t, err, moderation.ErrReplyNotFound)

	// ID поста не может быть родителем-ответом
	_, err = store.AddReply(ctx, post.ID, &post.ID, "bob", "hello")
	assert.ErrorIs(t, err, moderation.ErrReplyNotFound)
}

func TestSQLStorage_SetStatus(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStorage(t)

	post, err := store.AddPost(ctx, "ann", "Post", "Content")
	require.NoError(t, err)
	reply, err := store.AddReply(ctx, post.ID, nil, "bob", "Reply")
	require.NoError(t, err)

	updated, err := store.SetReplyStatus(ctx, post.ID, reply.ID, models.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, reply.ID, updated.ID)
	assert.Equal(t, models.StatusApproved, updated.Status)

	updatedPost, err := store.SetPostStatus(ctx, post.ID, models.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, updatedPost.Status)
	require.Len(t, updatedPost.Replies, 1)

	posts, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)
	summary := moderation.Summarize(posts)
	assert.Equal(t, models.Summary{Total: 2, Approved: 1, Rejected: 1}, summary)

	_, err = store.SetPostStatus(ctx, "ghost", models.StatusApproved)
	assert.ErrorIs(t, err, moderation.ErrPostNotFound)
	_, err = store.SetReplyStatus(ctx, post.ID, "ghost", models.StatusApproved)
	assert.ErrorIs(t, err, moderation.ErrReplyNotFound)
	_, err = store.SetReplyStatus(ctx, post.ID, post.ID, models.StatusApproved)
	assert.ErrorIs(t, err, moderation.ErrReplyNotFound)
	_, err = store.SetPostStatus(ctx, post.ID, models.Status("hidden"))
	assert.ErrorIs(t, err, models.ErrInvalidStatus)
}

func TestSQLStorage_DeleteReplySubtree(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStorage(t)

	post, err := store.AddPost(ctx, "ann", "Post", "Content")
	require.NoError(t, err)
	a, err := store.AddReply(ctx, post.ID, nil, "bob", "a")
	require.NoError(t, err)
	b, err := store.AddReply(ctx, post.ID, &a.ID, "bob", "b")
	require.NoError(t, err)
	_, err = store.AddReply(ctx, post.ID, &b.ID, "bob", "c")
	require.NoError(t, err)
	_, err = store.AddReply(ctx, post.ID, nil, "bob", "sibling")
	require.NoError(t, err)

	before, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)
	target, err := moderation.Find(before, post.ID, &a.ID)
	require.NoError(t, err)

	require.NoError(t, store.DeleteReply(ctx, post.ID, a.ID))

	after, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, moderation.CountAll(before)-1-moderation.CountAll(target.Replies), moderation.CountAll(after))
	require.Len(t, after[0].Replies, 1)
	assert.Equal(t, "sibling", after[0].Replies[0].Content)

	assert.ErrorIs(t, store.DeleteReply(ctx, post.ID, a.ID), moderation.ErrReplyNotFound)
	assert.ErrorIs(t, store.DeleteReply(ctx, "ghost", a.ID), moderation.ErrPostNotFound)
}

func TestSQLStorage_DeletePost(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStorage(t)

	keep, err := store.AddPost(ctx, "ann", "Keep", "Content")
	require.NoError(t, err)
	drop, err := store.AddPost(ctx, "ann", "Drop", "Content")
	require.NoError(t, err)
	_, err = store.AddReply(ctx, drop.ID, nil, "bob", "Reply")
	require.NoError(t, err)

	require.NoError(t, store.DeletePost(ctx, drop.ID))

	posts, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, keep.ID, posts[0].ID)

	assert.ErrorIs(t, store.DeletePost(ctx, drop.ID), moderation.ErrPostNotFound)
}

func TestSQLStorage_ReplyNeedsLiveParent(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStorage(t)

	post, err := store.AddPost(ctx, "ann", "Post", "Content")
	require.NoError(t, err)
	reply, err := store.AddReply(ctx, post.ID, nil, "bob", "Reply")
	require.NoError(t, err)
	require.NoError(t, store.DeletePost(ctx, post.ID))

	// Вставка после удаления поста упирается во внешний ключ
	late := models.Node{ID: "late", PostID: post.ID, Author: "eve", Content: "late", Status: models.StatusPending, Date: time.Now().UTC()}
	assert.Error(t, store.insert(ctx, store.DB, late))
	late.ParentID = &reply.ID
	assert.Error(t, store.insert(ctx, store.DB, late))

	_, err = store.AddReply(ctx, post.ID, nil, "eve", "late")
	assert.ErrorIs(t, err, moderation.ErrPostNotFound)

	posts, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestSQLStorage_DeletePostRowCascades(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStorage(t)

	post, err := store.AddPost(ctx, "ann", "Post", "Content")
	require.NoError(t, err)
	a, err := store.AddReply(ctx, post.ID, nil, "bob", "a")
	require.NoError(t, err)
	_, err = store.AddReply(ctx, post.ID, &a.ID, "eve", "b")
	require.NoError(t, err)

	_, err = store.DB.ExecContext(ctx, `DELETE FROM nodes WHERE post_id = $1 AND id = $1`, post.ID)
	require.NoError(t, err)

	var left int
	require.NoError(t, store.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&left))
	assert.Zero(t, left)
}

func TestSQLStorage_OrphanRowsSkipped(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStorage(t)

	post, err := store.AddPost(ctx, "ann", "Healthy", "Content")
	require.NoError(t, err)

	// Строку без родителя можно получить только в обход внешнего ключа
	_, err = store.DB.ExecContext(ctx, `PRAGMA foreign_keys = OFF`)
	require.NoError(t, err)
	orphan := models.Node{ID: "orphan", PostID: "ghost", Author: "eve", Content: "lost", Status: models.StatusPending, Date: time.Now().UTC()}
	require.NoError(t, store.insert(ctx, store.DB, orphan))

	posts, err := store.GetModerationPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, post.ID, posts[0].ID)
}
