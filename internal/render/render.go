// Package render печатает деревья модерации в консоль
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/moderation"
	"github.com/MosinFAM/forum-moderation/internal/models"

	"github.com/dustin/go-humanize"
)

const indentUnit = "  "

// Printer - настройки вывода. MaxDepth <= 0 снимает ограничение отступа.
type Printer struct {
	MaxDepth int
	Now      func() time.Time
}

// Tree печатает посты с ответами; отступ перестаёт расти на глубине maxDepth
func Tree(w io.Writer, posts []models.Node, maxDepth int) error {
	return Printer{MaxDepth: maxDepth, Now: time.Now}.Print(w, posts)
}

func (p Printer) Print(w io.Writer, posts []models.Node) error {
	if len(posts) == 0 {
		_, err := fmt.Fprintln(w, "no posts")
		return err
	}
	for _, post := range posts {
		if err := p.node(w, post, 0); err != nil {
			return err
		}
	}
	return nil
}

func (p Printer) node(w io.Writer, n models.Node, depth int) error {
	level := depth
	if p.MaxDepth > 0 && level > p.MaxDepth {
		level = p.MaxDepth
	}
	indent := strings.Repeat(indentUnit, level)

	marker := " "
	if n.Status != models.StatusPending && moderation.HasPendingDescendant(n) {
		marker = "*"
	}

	head := n.Author
	if depth == 0 && n.Title != "" {
		head = fmt.Sprintf("%s by %s", n.Title, n.Author)
	}
	if when := p.when(n.Date); when != "" {
		head += ", " + when
	}

	if _, err := fmt.Fprintf(w, "%s%s[%s] %s (%s)\n", indent, marker, n.Status, head, n.ID); err != nil {
		return err
	}
	if content := strings.TrimSpace(n.Content); content != "" {
		for _, line := range strings.Split(content, "\n") {
			if _, err := fmt.Fprintf(w, "%s%s  %s\n", indent, indentUnit, line); err != nil {
				return err
			}
		}
	}

	for _, r := range n.Replies {
		if err := p.node(w, r, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (p Printer) when(date time.Time) string {
	if date.IsZero() {
		return ""
	}
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	return humanize.RelTime(date, now, "ago", "from now")
}

// Summary печатает счётчики одной строкой
func Summary(w io.Writer, s models.Summary) error {
	_, err := fmt.Fprintf(w, "total: %d  pending: %d  approved: %d  rejected: %d\n",
		s.Total, s.Pending, s.Approved, s.Rejected)
	return err
}
