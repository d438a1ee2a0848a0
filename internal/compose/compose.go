package compose

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/GovTribe/notify/internal/model"
)

// Display truncation limits. Names longer than these are cut and marked with
// an ellipsis.
const (
	nameLimit  = 90
	valueLimit = 15
)

// Result is a composed notification message plus the emoji tag selected for
// it. The tag travels as channel metadata; it is never embedded in the text.
type Result struct {
	Message string
	Tag     string
}

// vars is the immutable context a single composition works from, populated
// once per call.
type vars struct {
	entityName string // quoted, length-limited
	dueDate    string
	setAside   string
	status     string
	awardValue string
	partyName  string

	added         bool
	updated       bool
	awarded       bool
	statusChanged bool

	dueDateAdded    bool
	dueDateChanged  bool
	setAsideAdded   bool
	setAsideChanged bool

	filesAdded int
	packages   string

	viewerName string
}

func newVars(act model.Activity, snap *model.Snapshot, viewerName string) vars {
	v := vars{
		added:           act.Actions.Added,
		updated:         act.Actions.Updated,
		awarded:         act.Actions.Awarded,
		statusChanged:   act.Actions.StatusChanged,
		dueDateAdded:    act.Actions.DueDateAdded,
		dueDateChanged:  act.Actions.DueDateChanged,
		setAsideAdded:   act.Actions.SetAsideAdded,
		setAsideChanged: act.Actions.SetAsideChanged,
		viewerName:      viewerName,
	}
	if snap == nil {
		return v
	}

	v.entityName = `"` + Limit(snap.Name, nameLimit) + `"`
	v.status = snap.WorkflowStatus
	v.setAside = snap.SetAsideType
	v.partyName = snap.CounterpartyName()
	if snap.DueDate != nil {
		v.dueDate = snap.DueDate.Format("1/2/06")
	}
	if snap.AwardValue != "" {
		v.awardValue = Limit(snap.AwardValue, valueLimit)
	}

	if len(act.Actions.AddedFiles) > 0 {
		names := make([]string, 0, len(act.Actions.AddedFiles))
		for pkg, files := range act.Actions.AddedFiles {
			v.filesAdded += len(files)
			if pkg != "Attachment" {
				names = append(names, pkg)
			}
		}
		sort.Strings(names)
		v.packages = strings.Join(names, ", ")
	}

	return v
}

// Compose converts an activity into a message phrased for the given
// perspective. Ok is false when the activity produces no message for that
// viewpoint.
//
// A message fires only for added+tracker, updated+entity, or
// awarded+counterparty. A snapshot without a recognized workflow status never
// produces a message, even when the firing gate matched.
func Compose(act model.Activity, p Perspective, snap *model.Snapshot, viewerName string) (Result, bool) {
	v := newVars(act, snap, viewerName)

	switch {
	case v.added && p == PerspectiveTracker:
	case v.updated && p == PerspectiveEntity:
	case v.awarded && p == PerspectiveCounterparty:
	default:
		return Result{}, false
	}

	return assemble(p, v)
}

// prefaceFor selects the message preface and emoji tag from the entity's
// lifecycle stage. The colon after the preface is a rendering concern, added
// only for the entity perspective.
func prefaceFor(v vars) (preface, tag string) {
	switch v.status {
	case model.StatusPresolicitation:
		if v.added || v.statusChanged {
			return "Presolicitation", "bam"
		}
		return "Update", "star"
	case model.StatusOpen:
		if v.added || v.statusChanged {
			return "Open for bid", "bam"
		}
		return "Update", "star"
	case model.StatusAwarded:
		return "Awarded", "moneybag"
	case model.StatusCancelled:
		return "Cancellation", "surprise"
	default:
		return "", ""
	}
}

// trackerVerbs rewrites a preface into its past-tense/verb form for messages
// phrased from the tracking party's viewpoint.
var trackerVerbs = map[string]string{
	"Open for bid":    "opened for bid",
	"Update":          "updated",
	"Cancellation":    "canceled",
	"Awarded":         "awarded",
	"Presolicitation": "released",
}

func assemble(p Perspective, v vars) (Result, bool) {
	if v.status == "" {
		return Result{}, false
	}

	preface, tag := prefaceFor(v)
	if preface == "" {
		return Result{}, false
	}

	details := detailsFor(v)

	var b strings.Builder
	switch p {
	case PerspectiveCounterparty:
		b.WriteString(v.viewerName)
		b.WriteString(" was ")
		b.WriteString(strings.ToLower(preface))
		b.WriteString(" ")
		b.WriteString(v.entityName)
		if v.awardValue != "" {
			b.WriteString(" (")
			b.WriteString(v.awardValue)
			b.WriteString(")")
		}

	case PerspectiveEntity:
		b.WriteString(preface)
		b.WriteString(": ")
		b.WriteString(v.entityName)
		if len(details) > 0 {
			b.WriteString(", ")
			b.WriteString(strings.Join(details, ", "))
		}

	case PerspectiveTracker:
		verb := preface
		if t, ok := trackerVerbs[preface]; ok {
			verb = t
		}
		b.WriteString(v.viewerName)
		b.WriteString(" ")
		b.WriteString(verb)
		b.WriteString(" ")
		b.WriteString(v.entityName)
		if len(details) > 0 {
			b.WriteString(", ")
			b.WriteString(strings.Join(details, ", "))
		}

	default:
		return Result{}, false
	}

	return Result{Message: b.String(), Tag: tag}, true
}

// detailsFor accumulates the detail fragments in their fixed order: due date,
// set-aside, counterparty, files.
func detailsFor(v vars) []string {
	var details []string
	if v.dueDateAdded {
		details = append(details, "Due: "+v.dueDate)
	}
	if v.dueDateChanged {
		details = append(details, "Due date changed: "+v.dueDate)
	}
	if v.setAsideAdded {
		details = append(details, "Set aside: "+v.setAside)
	}
	if v.setAsideChanged {
		details = append(details, "Set aside changed: "+v.setAside)
	}

	if v.partyName != "" && v.awardValue != "" {
		details = append(details, fmt.Sprintf("To: %s (%s)", v.partyName, v.awardValue))
	} else if v.partyName != "" {
		details = append(details, "To: "+v.partyName)
	}

	if v.filesAdded > 0 && v.packages != "" {
		details = append(details, fmt.Sprintf("%d file(s) added: %s", v.filesAdded, v.packages))
	} else if v.filesAdded > 0 {
		details = append(details, fmt.Sprintf("%d file(s) added", v.filesAdded))
	}
	return details
}

// Limit cuts s to at most n characters, trimming trailing spaces at the cut
// and appending an ellipsis marker. The cut lands on a rune boundary, so
// multibyte names survive truncation as valid UTF-8.
func Limit(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimRight(string([]rune(s)[:n]), " ") + "..."
}

// Emoji resolves an emoji tag to its character for display contexts that
// render one next to the message.
func Emoji(tag string) string {
	switch tag {
	case "moneybag":
		return "\U0001f4b0"
	case "surprise":
		return "\U0001f622"
	case "happy":
		return "\U0001f60a"
	case "bam":
		return "\U0001f4a5"
	case "star":
		return "\U0001f31f"
	case "thumbsDown":
		return "\U0001f44e"
	default:
		return ""
	}
}

// Ordinal renders a display ordinal ("1st", "2nd", "3rd", "11th", ...) for an
// entity's version number.
func Ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
		// teens take "th"
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
