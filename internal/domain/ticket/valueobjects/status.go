package valueobjects

// StatusKind is the semantic classification of a raw tracker status name.
type StatusKind string

const (
	KindUnstarted  StatusKind = "unstarted"
	KindInProgress StatusKind = "in_progress"
	KindCompleted  StatusKind = "completed"
	KindOther      StatusKind = "other"
)

// StatusClass pairs the semantic kind with the raw upstream status name.
// The raw name is kept so logs and messages can show what the tracker
// actually reported, including localized vocabulary.
type StatusClass struct {
	kind StatusKind
	raw  string
}

// Completion vocabulary as reported by the tracker. The tracker may be
// localized, so both Japanese and English names are members.
var completedStatusNames = map[string]bool{
	"完了":       true,
	"終了":       true,
	"クローズ":     true,
	"Closed":   true,
	"Resolved": true,
	"Done":     true,
}

var unstartedStatusNames = map[string]bool{
	"未着手": true,
	"新規":  true,
	"New": true,
}

var inProgressStatusNames = map[string]bool{
	"進行中":         true,
	"着手":          true,
	"In Progress": true,
	"Assigned":    true,
}

// Classify maps a raw tracker status name onto its semantic kind.
// Names outside the known vocabulary classify as KindOther and keep
// the raw name for reporting.
func Classify(raw string) StatusClass {
	switch {
	case completedStatusNames[raw]:
		return StatusClass{kind: KindCompleted, raw: raw}
	case unstartedStatusNames[raw]:
		return StatusClass{kind: KindUnstarted, raw: raw}
	case inProgressStatusNames[raw]:
		return StatusClass{kind: KindInProgress, raw: raw}
	default:
		return StatusClass{kind: KindOther, raw: raw}
	}
}

func (s StatusClass) Kind() StatusKind {
	return s.kind
}

func (s StatusClass) Raw() string {
	return s.raw
}

func (s StatusClass) String() string {
	return string(s.kind)
}

func (s StatusClass) IsUnstarted() bool {
	return s.kind == KindUnstarted
}

func (s StatusClass) IsInProgress() bool {
	return s.kind == KindInProgress
}

func (s StatusClass) IsCompleted() bool {
	return s.kind == KindCompleted
}
