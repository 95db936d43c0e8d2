// Package report renders a cycle's changes and failures into a notification.
package report

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// DefaultSubjectPrefix tags every notification subject.
const DefaultSubjectPrefix = "[pagewatch]"

const (
	separator          = "============================================================"
	noneMarker         = "(none)"
	diffPlaceholder    = "(diff unavailable - first capture of content)"
	changesIntro       = "Changes detected on the following pages:"
	extractBeforeTitle = "--- EXTRACT BEFORE ---"
	extractAfterTitle  = "--- EXTRACT AFTER ---"
	diffTitle          = "--- DIFF ---"
)

// Subject returns the notification subject for n changes.
func Subject(prefix string, n int) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return fmt.Sprintf("%s %d change(s) detected", prefix, n)
}

// Body renders the events in the given order followed by a failure summary
// when failures is non-empty.
func Body(changes []monitor.ChangeEvent, failures []monitor.Failure) string {
	var b strings.Builder
	b.WriteString(changesIntro)
	b.WriteString("\n")

	for _, ev := range changes {
		writeChange(&b, ev)
	}

	if len(failures) > 0 {
		b.WriteString("\n\n")
		b.WriteString(separator)
		fmt.Fprintf(&b, "\n%d failure(s) encountered:\n", len(failures))
		for _, f := range failures {
			fmt.Fprintf(&b, "  - %s: %s\n", f.Target.URL, f.Summary())
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeChange(b *strings.Builder, ev monitor.ChangeEvent) {
	b.WriteString("\n")
	b.WriteString(separator)
	fmt.Fprintf(b, "\nURL: %s\n", ev.Target.URL)
	if ev.Target.Group != "" {
		fmt.Fprintf(b, "Group: %s\n", ev.Target.Group)
	}

	if ev.PreviousExtract != "" || ev.CurrentExtract != "" {
		fmt.Fprintf(b, "\n%s\n%s\n", extractBeforeTitle, orNone(ev.PreviousExtract))
		fmt.Fprintf(b, "\n%s\n%s\n", extractAfterTitle, orNone(ev.CurrentExtract))
	}

	diff := ev.Diff
	if diff == "" {
		diff = diffPlaceholder
	}
	fmt.Fprintf(b, "\n%s\n%s\n", diffTitle, diff)

	if ev.ArchiveLocator != "" {
		fmt.Fprintf(b, "\nArchive: %s\n", ev.ArchiveLocator)
	}
}

func orNone(s string) string {
	if s == "" {
		return noneMarker
	}
	return s
}
