package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrValidation       = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Record is a persisted card.
type Record struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Visible      bool      `json:"visible"`
	Downloadable bool      `json:"downloadable"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RecordFields carries the client-supplied attributes of a record. Nil
// pointers mean "not provided".
type RecordFields struct {
	Title        *string `json:"title"`
	Content      *string `json:"content"`
	Visible      *bool   `json:"visible"`
	Downloadable *bool   `json:"downloadable"`
}

// ValidTitle reports whether title is usable as a record title: present and
// not blank.
func ValidTitle(title *string) bool {
	return title != nil && strings.TrimSpace(*title) != ""
}

// NewRecord builds a record from fields, applying defaults
// (visible=true, downloadable=false). The title must be non-empty.
func NewRecord(f RecordFields, now time.Time) (Record, error) {
	if !ValidTitle(f.Title) {
		return Record{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	r := Record{
		Title:     *f.Title,
		Visible:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if f.Content != nil {
		r.Content = *f.Content
	}
	if f.Visible != nil {
		r.Visible = *f.Visible
	}
	if f.Downloadable != nil {
		r.Downloadable = *f.Downloadable
	}
	return r, nil
}

// Apply overwrites r with every provided field. id and createdAt are never touched.
func (f RecordFields) Apply(r *Record, now time.Time) error {
	if f.Title != nil {
		if !ValidTitle(f.Title) {
			return fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		r.Title = *f.Title
	}
	if f.Content != nil {
		r.Content = *f.Content
	}
	if f.Visible != nil {
		r.Visible = *f.Visible
	}
	if f.Downloadable != nil {
		r.Downloadable = *f.Downloadable
	}
	r.UpdatedAt = now
	return nil
}

// Complete reports whether the entry carries both a title and content, the
// requirement for bulk insertion. A blank title counts as missing, the same
// rule NewRecord applies.
func (f RecordFields) Complete() bool {
	return ValidTitle(f.Title) && f.Content != nil && *f.Content != ""
}

// FilterComplete keeps the entries accepted by a bulk insert. It fails when
// the input is empty or nothing survives the filter.
func FilterComplete(list []RecordFields) ([]RecordFields, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: record list is empty or invalid", ErrValidation)
	}
	valid := make([]RecordFields, 0, len(list))
	for _, f := range list {
		if f.Complete() {
			valid = append(valid, f)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid record to insert", ErrValidation)
	}
	return valid, nil
}

// Field names a boolean flag that can be patched on its own.
type Field string

const (
	FieldVisible      Field = "visible"
	FieldDownloadable Field = "downloadable"
)

func (f Field) Valid() bool {
	return f == FieldVisible || f == FieldDownloadable
}

// ParseSearchQuery accepts exactly one value for the q parameter.
func ParseSearchQuery(values []string) (string, error) {
	if len(values) != 1 {
		return "", fmt.Errorf("%w: q has to be a string", ErrValidation)
	}
	return values[0], nil
}

// Period is the granularity of the creation statistics.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	}
	return "", fmt.Errorf("%w: period must be one of day, week, month, year", ErrValidation)
}

// Bucket truncates t (in UTC) to the period and returns the bucket key.
// Weeks use the ISO week-numbering year, so Dec 31 and Jan 1 of the same
// ISO week share a bucket.
func (p Period) Bucket(t time.Time) string {
	t = t.UTC()
	switch p {
	case PeriodDay:
		return t.Format("2006-01-02")
	case PeriodWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006")
	}
}

// DateFormat is the $dateToString format producing the same keys as Bucket.
func (p Period) DateFormat() string {
	switch p {
	case PeriodDay:
		return "%Y-%m-%d"
	case PeriodWeek:
		return "%G-W%V"
	case PeriodMonth:
		return "%Y-%m"
	default:
		return "%Y"
	}
}

// StatBucket is the number of records created within one bucket.
type StatBucket struct {
	Bucket string `json:"bucket"`
	Total  int64  `json:"total"`
}
