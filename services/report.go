package services

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"affiliate-poster/models"
)

// PrintReport writes a human readable summary of a run.
func PrintReport(w io.Writer, r *models.RunReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📝 AFFILIATE POST RUN\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Run id            : %s\n", r.RunID)
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  Duration          : %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  Posts written     : \033[1m%d\033[0m / %d\n", r.Posted, r.Target)
	fmt.Fprintf(w, "  Fallback reviews  : %d\n", r.Fallbacks)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Queries\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Issued            : %d\n", r.Queries)
	fmt.Fprintf(w, "  Failed            : %d\n", r.FailedQueries)
	fmt.Fprintf(w, "  No products       : %d\n", r.EmptyResults)
	fmt.Fprintf(w, "  Already posted    : %d\n", r.Duplicates)
	fmt.Fprintf(w, "  Skipped (bad id)  : %d\n", r.Skipped)
	for i, term := range r.Terms {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %s\n", i+1, truncate(term, 48))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Files\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.Files) == 0 {
		fmt.Fprintf(w, "  No posts created\n")
	}
	for _, f := range r.Files {
		fmt.Fprintf(w, "  %s\n", filepath.ToSlash(f))
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
