package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/mikey/applytrack/internal/classifier"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/notify"
	"github.com/mikey/applytrack/internal/review"
	"github.com/mikey/applytrack/internal/utils"
)

const previewRunes = 200

// Printer renders results as plain text sections
type Printer struct {
	out     io.Writer
	verbose bool
}

// NewPrinter creates a printer writing to out
func NewPrinter(out io.Writer, verbose bool) *Printer {
	return &Printer{out: out, verbose: verbose}
}

func (p *Printer) section(title string) {
	fmt.Fprintf(p.out, "\n=== %s ===\n", title)
}

func (p *Printer) field(name string, format string, args ...any) {
	fmt.Fprintf(p.out, "%s: %s\n", name, fmt.Sprintf(format, args...))
}

// Run prints a sync or classification run
func (p *Printer) Run(run *core.SyncRun) {
	if run == nil {
		return
	}
	p.section(fmt.Sprintf("%s run %s", run.Kind, run.ID))
	p.field("Status", "%s", run.Status)
	p.field("Started", "%s", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		p.field("Duration", "%v", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	switch run.Kind {
	case core.SyncKindFetch:
		p.field("Fetched", "%d", run.Fetched)
		p.field("Duplicates", "%d", run.Duplicates)
		p.field("Stored", "%d", run.Stored)
		p.field("Filtered", "%d", run.Filtered)
	case core.SyncKindClassify:
		p.field("Classified", "%d", run.Classified)
		p.field("Extraction failed", "%d", run.ExtractionFailed)
	}
	p.field("Failed", "%d", run.Failed)
	if run.Error != "" {
		p.field("Error", "%s", run.Error)
	}
}

// Runs prints a run history, newest first
func (p *Printer) Runs(runs []core.SyncRun) {
	p.section(fmt.Sprintf("Runs (%d)", len(runs)))
	for _, r := range runs {
		fmt.Fprintf(p.out, "%s  %-8s %-9s fetched=%d stored=%d filtered=%d classified=%d failed=%d\n",
			r.StartedAt.Format(time.RFC3339), r.Kind, r.Status,
			r.Fetched, r.Stored, r.Filtered, r.Classified, r.Failed)
	}
}

// Queue prints the review queue
func (p *Printer) Queue(msgs []core.Message) {
	p.section(fmt.Sprintf("Review queue (%d)", len(msgs)))
	for i := range msgs {
		p.Message(&msgs[i])
	}
}

// Message prints one message with its classification
func (p *Printer) Message(m *core.Message) {
	fmt.Fprintf(p.out, "\n[%s] %s\n", m.ID, m.Subject)
	p.field("From", "%s", m.From)
	p.field("Received", "%s", m.ReceivedAt.Format(time.RFC3339))
	p.field("Review", "%s", m.ReviewState)
	if m.FilterReason != "" {
		p.field("Filter", "%s (%s)", m.FilterStatus, m.FilterReason)
	}
	if c := m.Classification; c != nil {
		p.field("Job related", "%t (confidence %.2f)", c.IsJobRelated, c.Confidence)
		if c.Company != "" {
			p.field("Company", "%s", c.Company)
		}
		if c.Position != "" {
			p.field("Position", "%s", c.Position)
		}
		if c.Status != "" {
			p.field("Status", "%s", c.Status)
		}
		if c.Summary != "" {
			p.field("Summary", "%s", c.Summary)
		}
	}
	if m.ClassificationError != "" {
		p.field("Classification error", "%s", m.ClassificationError)
	}
	if m.SuggestedAppID != nil {
		p.field("Suggested application", "%s (by %s)", *m.SuggestedAppID, m.SuggestedBy)
	}
	if p.verbose && m.Preview != "" {
		fmt.Fprintf(p.out, "\nPreview:\n%s\n", utils.Prefix(m.Preview, previewRunes))
	}
}

// Decision prints the result of an approval
func (p *Printer) Decision(d *review.Decision) {
	p.section("Approved")
	if d.Application == nil {
		p.field("Application", "none")
		return
	}
	a := d.Application
	p.field("Application", "%s", a.ID)
	p.field("Company", "%s", a.Company)
	if a.Position != "" {
		p.field("Position", "%s", a.Position)
	}
	p.field("Status", "%s", a.Status)
	if d.Created {
		p.field("Linked by", "new application")
	} else {
		p.field("Linked by", "%s", d.Strategy)
	}
	p.field("Status changed", "%t", d.StatusChanged)
	if d.FollowUpSent != nil {
		p.field("Follow-up sent", "%s", d.FollowUpSent.ID)
	}
}

// Outcome prints the result of a re-classification
func (p *Printer) Outcome(o *classifier.Outcome) {
	p.section("Classification")
	if o == nil {
		p.field("Result", "none")
		return
	}
	if o.ExtractionFailed {
		p.field("Result", "model output could not be parsed")
		return
	}
	p.field("Qualified", "%t", o.Qualified)
	if c := o.Classification; c != nil {
		p.field("Job related", "%t (confidence %.2f)", c.IsJobRelated, c.Confidence)
		p.field("Company", "%s", c.Company)
	}
	if o.Suggestion.Found() {
		p.field("Suggested application", "%s (by %s)", o.Suggestion.ApplicationID, o.Suggestion.Strategy)
	}
}

// Applications prints the tracker
func (p *Printer) Applications(apps []core.Application) {
	p.section(fmt.Sprintf("Applications (%d)", len(apps)))
	for _, a := range apps {
		fmt.Fprintf(p.out, "%s  %-12s %s", a.ID, a.Status, a.Company)
		if a.Position != "" {
			fmt.Fprintf(p.out, " / %s", a.Position)
		}
		fmt.Fprintln(p.out)
	}
}

// Notifications prints derived reminders
func (p *Printer) Notifications(list []notify.Notification) {
	p.section(fmt.Sprintf("Notifications (%d)", len(list)))
	for _, n := range list {
		fmt.Fprintf(p.out, "[%s] %s: %s", n.Priority, n.Type, n.Company)
		if n.Position != "" {
			fmt.Fprintf(p.out, " / %s", n.Position)
		}
		fmt.Fprintf(p.out, " (%d days)\n", n.Days)
	}
}
