// Package moderation обходит деревья постов и ответов: подсчёт по статусам,
// фильтр очереди на модерацию и точечные изменения узлов.
//
// Все функции работают над снимком дерева и никогда не меняют входной срез:
// изменения возвращаются новым деревом, узлы вне пути к цели переиспользуются.
//
// ID ответа уникален в пределах своего поста, поэтому ответ ищется только
// в дереве указанного поста.
package moderation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MosinFAM/forum-moderation/internal/models"
)

var (
	ErrPostNotFound  = errors.New("post not found")
	ErrReplyNotFound = errors.New("reply not found")
	ErrMalformedTree = errors.New("malformed tree")
)

// CountAll возвращает общее число узлов
func CountAll(posts []models.Node) int {
	total := 0
	for _, p := range posts {
		total += 1 + CountAll(p.Replies)
	}
	return total
}

// CountByStatus считает узлы с заданным статусом на любой глубине
func CountByStatus(posts []models.Node, status models.Status) int {
	total := 0
	for _, p := range posts {
		if p.Status == status {
			total++
		}
		total += CountByStatus(p.Replies, status)
	}
	return total
}

// Summarize собирает счётчики за один проход
func Summarize(posts []models.Node) models.Summary {
	var s models.Summary
	var walk func(nodes []models.Node)
	walk = func(nodes []models.Node) {
		for _, n := range nodes {
			s.Total++
			switch n.Status {
			case models.StatusPending:
				s.Pending++
			case models.StatusApproved:
				s.Approved++
			case models.StatusRejected:
				s.Rejected++
			}
			walk(n.Replies)
		}
	}
	walk(posts)
	return s
}

// HasPendingDescendant - true, если сам узел или любой его потомок ждёт модерации
func HasPendingDescendant(node models.Node) bool {
	if node.Status == models.StatusPending {
		return true
	}
	for _, r := range node.Replies {
		if HasPendingDescendant(r) {
			return true
		}
	}
	return false
}

// MatchesSearch проверяет вхождение term в автора, заголовок или текст без учёта регистра.
// Пустой term подходит всем.
func MatchesSearch(node models.Node, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(node.Author), term) ||
		strings.Contains(strings.ToLower(node.Title), term) ||
		strings.Contains(strings.ToLower(node.Content), term)
}

// FilterPending оставляет посты, в дереве которых есть хотя бы один pending узел
// и которые подходят под поисковый запрос.
func FilterPending(posts []models.Node, term string) []models.Node {
	result := make([]models.Node, 0, len(posts))
	for _, p := range posts {
		if HasPendingDescendant(p) && MatchesSearch(p, term) {
			result = append(result, p)
		}
	}
	return result
}

// Find возвращает пост (replyID == nil) или ответ внутри поста
func Find(posts []models.Node, postID string, replyID *string) (models.Node, error) {
	idx := indexOf(posts, postID)
	if idx < 0 {
		return models.Node{}, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	if replyID == nil {
		return posts[idx], nil
	}
	if n, ok := findReply(posts[idx].Replies, *replyID); ok {
		return n, nil
	}
	return models.Node{}, fmt.Errorf("%w: %s/%s", ErrReplyNotFound, postID, *replyID)
}

// UpdateStatus возвращает новое дерево, в котором у целевого узла заменён статус.
// Остальные узлы не меняются.
func UpdateStatus(posts []models.Node, postID string, replyID *string, status models.Status) ([]models.Node, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}
	idx := indexOf(posts, postID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}

	post := posts[idx]
	if replyID == nil {
		post.Status = status
	} else {
		replies, ok := updateReply(post.Replies, *replyID, status)
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrReplyNotFound, postID, *replyID)
		}
		post.Replies = replies
	}

	result := clone(posts)
	result[idx] = post
	return result, nil
}

// DeleteNode удаляет пост или ответ вместе со всем поддеревом
func DeleteNode(posts []models.Node, postID string, replyID *string) ([]models.Node, error) {
	idx := indexOf(posts, postID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}

	if replyID == nil {
		result := make([]models.Node, 0, len(posts)-1)
		result = append(result, posts[:idx]...)
		return append(result, posts[idx+1:]...), nil
	}

	replies, ok := deleteReply(posts[idx].Replies, *replyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrReplyNotFound, postID, *replyID)
	}
	result := clone(posts)
	result[idx].Replies = replies
	return result, nil
}

// InsertReply добавляет ответ последним ребёнком поста (parentID == nil)
// или ответа parentID внутри поста.
func InsertReply(posts []models.Node, postID string, parentID *string, reply models.Node) ([]models.Node, error) {
	idx := indexOf(posts, postID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	if reply.Replies == nil {
		reply.Replies = []models.Node{}
	}

	result := clone(posts)
	if parentID == nil {
		result[idx].Replies = append(clone(posts[idx].Replies), reply)
		return result, nil
	}

	replies, ok := insertReply(posts[idx].Replies, *parentID, reply)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrReplyNotFound, postID, *parentID)
	}
	result[idx].Replies = replies
	return result, nil
}

// BuildTree собирает деревья постов из плоского списка строк.
// Пост - строка с PostID == ID, ответ без ParentID висит прямо на посте.
// Порядок строк сохраняется среди детей одного родителя.
// Если часть строк не достижима от поста, вместе с ErrMalformedTree
// возвращаются собранные деревья; при дубликатах деревьев нет.
func BuildTree(rows []models.Node) ([]models.Node, error) {
	children := make(map[string][]models.Node)
	seen := make(map[string]struct{}, len(rows))
	var roots []models.Node

	for _, row := range rows {
		if row.PostID == "" {
			row.PostID = row.ID
		}
		key := nodeKey(row.PostID, row.ID)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrMalformedTree, key)
		}
		seen[key] = struct{}{}

		switch {
		case row.PostID == row.ID:
			roots = append(roots, row)
		case row.ParentID == nil:
			children[nodeKey(row.PostID, row.PostID)] = append(children[nodeKey(row.PostID, row.PostID)], row)
		default:
			children[nodeKey(row.PostID, *row.ParentID)] = append(children[nodeKey(row.PostID, *row.ParentID)], row)
		}
	}

	attached := 0
	var attach func(n models.Node) models.Node
	attach = func(n models.Node) models.Node {
		attached++
		kids := children[nodeKey(n.PostID, n.ID)]
		n.Replies = make([]models.Node, 0, len(kids))
		for _, k := range kids {
			n.Replies = append(n.Replies, attach(k))
		}
		return n
	}

	result := make([]models.Node, 0, len(roots))
	for _, r := range roots {
		result = append(result, attach(r))
	}
	if attached != len(rows) {
		return result, fmt.Errorf("%w: %d of %d rows are not reachable from a post", ErrMalformedTree, len(rows)-attached, len(rows))
	}
	return result, nil
}

func nodeKey(postID, id string) string {
	return postID + "/" + id
}

func indexOf(posts []models.Node, id string) int {
	for i := range posts {
		if posts[i].ID == id {
			return i
		}
	}
	return -1
}

func clone(nodes []models.Node) []models.Node {
	out := make([]models.Node, len(nodes))
	copy(out, nodes)
	return out
}

// findReply - поиск в глубину, первый узел с подходящим ID
func findReply(nodes []models.Node, id string) (models.Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
		if found, ok := findReply(n.Replies, id); ok {
			return found, true
		}
	}
	return models.Node{}, false
}

func updateReply(nodes []models.Node, id string, status models.Status) ([]models.Node, bool) {
	for i, n := range nodes {
		if n.ID == id {
			out := clone(nodes)
			out[i].Status = status
			return out, true
		}
		if replies, ok := updateReply(n.Replies, id, status); ok {
			out := clone(nodes)
			out[i].Replies = replies
			return out, true
		}
	}
	return nil, false
}

func deleteReply(nodes []models.Node, id string) ([]models.Node, bool) {
	for i, n := range nodes {
		if n.ID == id {
			out := make([]models.Node, 0, len(nodes)-1)
			out = append(out, nodes[:i]...)
			return append(out, nodes[i+1:]...), true
		}
		if replies, ok := deleteReply(n.Replies, id); ok {
			out := clone(nodes)
			out[i].Replies = replies
			return out, true
		}
	}
	return nil, false
}

func insertReply(nodes []models.Node, parentID string, reply models.Node) ([]models.Node, bool) {
	for i, n := range nodes {
		if n.ID == parentID {
			out := clone(nodes)
			out[i].Replies = append(clone(n.Replies), reply)
			return out, true
		}
		if replies, ok := insertReply(n.Replies, parentID, reply); ok {
			out := clone(nodes)
			out[i].Replies = replies
			return out, true
		}
	}
	return nil, false
}
