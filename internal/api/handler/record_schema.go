package handler

import "github.com/metacode/fiches-api/internal/core/domain"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// recordRequest carries the writable fields of a record. Absent fields stay
// nil so updates only touch what the client sent.
type recordRequest struct {
	Title        *string `json:"title"`
	Content      *string `json:"content"`
	Visible      *bool   `json:"visible"`
	Downloadable *bool   `json:"downloadable"`
}

type visibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

type downloadableRequest struct {
	Downloadable *bool `json:"downloadable" validate:"required"`
}

func (r recordRequest) toFields() domain.RecordFields {
	return domain.RecordFields{
		Title:        r.Title,
		Content:      r.Content,
		Visible:      r.Visible,
		Downloadable: r.Downloadable,
	}
}

func toFieldsList(reqs []recordRequest) []domain.RecordFields {
	out := make([]domain.RecordFields, len(reqs))
	for i, r := range reqs {
		out[i] = r.toFields()
	}
	return out
}

// recordListResponse never serializes as null.
func recordListResponse(records []*domain.Record) []*domain.Record {
	if records == nil {
		return []*domain.Record{}
	}
	return records
}
