package core

import (
	"context"
	"errors"
)

// ErrArtifactNotFound is returned by an ArtifactStore when a room has no blob of the
// requested kind yet.
var ErrArtifactNotFound = errors.New("artifact not found")

type (
	// ConnectionID is assigned by the transport and is stable for the lifetime of a
	// connection.
	ConnectionID string

	// RoomID is the caller-supplied identity of a collaboration room.
	RoomID string

	// Field names one of the four shared values of a room.
	Field string

	// Document is the shared state of a room. A nil field has never been set.
	Document struct {
		Code         *string `json:"code,omitempty"`
		Input        *string `json:"input,omitempty"`
		Output       *string `json:"output,omitempty"`
		LanguageUsed *string `json:"languageUsed,omitempty"`
	}

	// ArtifactKind selects one of the two blobs handed to the execution service.
	ArtifactKind string

	// ArtifactStore holds the latest code and stdin blobs of each room so that an
	// execution request observes the most recent edits.
	ArtifactStore interface {
		Write(ctx context.Context, roomID RoomID, kind ArtifactKind, data string) error
		Read(ctx context.Context, roomID RoomID, kind ArtifactKind) (string, error)
	}
)

const (
	FieldCode         Field = "code"
	FieldInput        Field = "input"
	FieldOutput       Field = "output"
	FieldLanguageUsed Field = "languageUsed"
)

const (
	ArtifactCode  ArtifactKind = "code"
	ArtifactInput ArtifactKind = "input"
)

// CatchUpOrder is the order in which a joining connection receives the fields of an
// existing document.
var CatchUpOrder = []Field{FieldLanguageUsed, FieldCode, FieldInput, FieldOutput}

func (f Field) Valid() bool {
	switch f {
	case FieldCode, FieldInput, FieldOutput, FieldLanguageUsed:
		return true
	}
	return false
}

// Artifact reports which execution blob mirrors the field, if any.
func (f Field) Artifact() (ArtifactKind, bool) {
	switch f {
	case FieldCode:
		return ArtifactCode, true
	case FieldInput:
		return ArtifactInput, true
	}
	return "", false
}

func (d *Document) slot(f Field) **string {
	switch f {
	case FieldCode:
		return &d.Code
	case FieldInput:
		return &d.Input
	case FieldOutput:
		return &d.Output
	case FieldLanguageUsed:
		return &d.LanguageUsed
	}
	return nil
}

// Get returns the value of f and whether it has been set.
func (d Document) Get(f Field) (string, bool) {
	p := d.slot(f)
	if p == nil || *p == nil {
		return "", false
	}
	return **p, true
}

// Set overwrites f, leaving the other fields untouched.
func (d *Document) Set(f Field, value string) {
	if p := d.slot(f); p != nil {
		v := value
		*p = &v
	}
}

// Clone returns a deep copy so callers can never mutate a stored document.
func (d Document) Clone() Document {
	var out Document
	for _, f := range CatchUpOrder {
		if v, ok := d.Get(f); ok {
			out.Set(f, v)
		}
	}
	return out
}
