package pruner

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"tweet-pruner/internal/domain"
)

// FormatReport готовит текстовый отчёт о запуске для оператора.
func FormatReport(report domain.RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Прогон %s (%s): %s\n", shortID(report.RunID), report.Mode, report.Termination)
	fmt.Fprintf(&b, "Обработано: %s, оставлено: %s, удалено: %s, ошибок удаления: %s, пропущено (dry run): %s\n",
		humanize.Comma(int64(report.Processed)),
		humanize.Comma(int64(report.Kept)),
		humanize.Comma(int64(report.Deleted)),
		humanize.Comma(int64(report.Failed)),
		humanize.Comma(int64(report.Skipped)),
	)
	fmt.Fprintf(&b, "Уже в журнале: %s, слишком свежие: %s, без классификатора: %s\n",
		humanize.Comma(int64(report.AlreadyDecided)),
		humanize.Comma(int64(report.TooRecent)),
		humanize.Comma(int64(report.Degraded)),
	)
	fmt.Fprintf(&b, "Всего: проанализировано %s, удалено %s, оставлено %s\n",
		humanize.Comma(report.State.TotalAnalyzed),
		humanize.Comma(report.State.TotalDeleted),
		humanize.Comma(report.State.TotalKept),
	)
	if !report.StartedAt.IsZero() && !report.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Длительность: %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	}
	if report.Error != "" {
		fmt.Fprintf(&b, "Ошибка: %s\n", report.Error)
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
