package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/jobsync/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes newly added postings to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each posting via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each posting as one structured line. Optional fields are only
// attached when set. It never fails.
func (n *LogNotifier) Notify(postings []model.Posting) error {
	for _, p := range postings {
		attrs := []slog.Attr{
			slog.String("source", string(p.Source)),
			slog.String("company", p.Company),
			slog.String("title", p.Title),
			slog.String("location", p.Location),
			slog.String("url", p.URL),
		}
		if p.MatchedKeyword != "" {
			attrs = append(attrs, slog.String("keyword", p.MatchedKeyword))
		}
		if p.Deadline != "" {
			attrs = append(attrs, slog.String("deadline", p.Deadline))
		}
		if p.ExpireAt != nil {
			attrs = append(attrs, slog.Time("expire_at", *p.ExpireAt))
		}
		n.logger.LogAttrs(context.Background(), slog.LevelInfo, "new posting", attrs...)
	}
	return nil
}
