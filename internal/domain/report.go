package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobState represents the lifecycle state of a backend report job.
type JobState string

// Report job lifecycle states.
const (
	JobStateRequested JobState = "REQUESTED"
	JobStateQueued    JobState = "QUEUED"
	JobStateReady     JobState = "READY"
	JobStateFailed    JobState = "FAILED"
)

// Terminal reports whether no further polling can change the state.
func (s JobState) Terminal() bool {
	return s == JobStateReady || s == JobStateFailed
}

// ReportJob is a server-side report computation.
type ReportJob struct {
	ID               string
	State            JobState
	CreatedAt        string // creationTime exactly as reported by the backend
	DownloadLocation string // empty until READY
}

// Template field names patched per chunk.
const (
	TemplateFieldStartTime = "startTime"
	TemplateFieldEndTime   = "endTime"
	TemplateFieldName      = "name"
)

// ReportTemplate is the opaque selector body describing what a report
// computes. Only startTime, endTime and name are ever patched.
type ReportTemplate map[string]any

// Clone returns a deep copy so per-chunk patches never leak into the source.
func (t ReportTemplate) Clone() ReportTemplate {
	if t == nil {
		return nil
	}
	return deepCopyValue(map[string]any(t)).(map[string]any)
}

// ForRange clones the template and stamps it with the range boundaries and
// a name derived from them.
func (t ReportTemplate) ForRange(prefix string, r DateRange) ReportTemplate {
	c := t.Clone()
	if c == nil {
		c = ReportTemplate{}
	}
	c[TemplateFieldStartTime] = r.StartTime()
	c[TemplateFieldEndTime] = r.EndTime()
	c[TemplateFieldName] = fmt.Sprintf("%s_%s_%s", prefix, r.StartTime(), r.EndTime())
	return c
}

func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = deepCopyValue(val)
		}
		return out
	case ReportTemplate:
		return ReportTemplate(deepCopyValue(map[string]any(tv)).(map[string]any))
	case []any:
		out := make([]any, len(tv))
		for i, val := range tv {
			out[i] = deepCopyValue(val)
		}
		return out
	case []string:
		return append([]string(nil), tv...)
	default:
		return v
	}
}

// Impression-share report column names.
const (
	FieldLowImpressionShare  = "lowImpressionShare"
	FieldHighImpressionShare = "highImpressionShare"
	FieldSearchPopularity    = "searchPopularity"
	FieldExtractedAt         = "extractedAt"
)

// ReportRow is one normalised impression-share row.
type ReportRow struct {
	LowImpressionShare  float64
	HighImpressionShare float64
	SearchPopularity    int64
	ExtractedAt         string            // creation time of the owning job
	Fields              map[string]string // remaining columns, verbatim
}

// MarshalJSON flattens the typed fields and pass-through columns into a
// single object. Typed fields win over a pass-through column of the same name.
func (r ReportRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[FieldLowImpressionShare] = r.LowImpressionShare
	out[FieldHighImpressionShare] = r.HighImpressionShare
	out[FieldSearchPopularity] = r.SearchPopularity
	out[FieldExtractedAt] = r.ExtractedAt
	return json.Marshal(out)
}

// ReportJobRecord is the ledger entry for one report job.
type ReportJobRecord struct {
	ID               string
	RunID            string
	BackendID        string
	TemplateName     string
	ChunkStart       string
	ChunkEnd         string
	State            JobState
	BackendCreatedAt string
	DownloadLocation *string
	RowCount         int
	ErrorMessage     *string
	MergedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ReportJobFilter holds filter parameters for listing ledger entries.
type ReportJobFilter struct {
	RunID *string
	State *JobState
	Limit int
}
