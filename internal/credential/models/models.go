// Package models holds the credential record and its lifecycle rules.
package models

import (
	"maps"
	"slices"
	"strings"
	"time"

	"certifier/internal/render"
	id "certifier/pkg/domain"
)

// Type is the kind of credential.
type Type string

const (
	TypeCertificate Type = "certificate"
	TypeBadge       Type = "badge"
	TypeDiploma     Type = "diploma"
	TypeAward       Type = "award"
)

func ParseType(s string) (Type, bool) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeCertificate, TypeBadge, TypeDiploma, TypeAward:
		return t, true
	}
	return "", false
}

// Status is the credential lifecycle state.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusGenerating Status = "generating"
	StatusIssued     Status = "issued"
	StatusFailed     Status = "failed"
	StatusRevoked    Status = "revoked"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusDraft, StatusGenerating, StatusIssued, StatusFailed, StatusRevoked:
		return st, true
	}
	return "", false
}

// transitions lists the legal state changes. failed -> generating is only
// taken by regeneration.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusGenerating},
	StatusGenerating: {StatusIssued, StatusFailed},
	StatusIssued:     {StatusRevoked},
	StatusFailed:     {StatusGenerating},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Source records how the artifact was produced.
type Source string

const (
	SourceDesign Source = "design"
	SourceUpload Source = "upload"
)

// Share is one recorded hand-off of the credential to a recipient.
type Share struct {
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	SharedAt  time.Time `json:"sharedAt"`
}

// Credential is the authoritative record of an issued (or attempted) credential.
type Credential struct {
	ID              id.CredentialID
	TenantID        id.TenantID
	ParticipantID   id.ParticipantID
	EventID         id.EventID
	TemplateID      *id.TemplateID
	Title           string
	Type            Type
	Source          Source
	Design          *render.Design
	ParticipantData render.Bundle
	Fingerprint     string
	VerificationURL string
	QRCode          string
	ArtifactURLs    map[render.Format]string
	Status          Status
	FailureCode     string
	FailureMessage  string
	IssuedAt        *time.Time
	RevokedAt       *time.Time
	RevokeReason    string
	DownloadCount   int64
	LastDownloadAt  *time.Time
	Shares          []Share
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasArtifact reports whether at least one rendered format is stored.
func (c *Credential) HasArtifact() bool {
	return len(c.ArtifactURLs) > 0
}

// ArtifactURL returns the stored URL for format.
func (c *Credential) ArtifactURL(format render.Format) (string, bool) {
	u, ok := c.ArtifactURLs[format]
	return u, ok && u != ""
}

// Clone returns a deep copy safe to hand out of a store.
func (c *Credential) Clone() *Credential {
	cp := *c
	cp.ArtifactURLs = maps.Clone(c.ArtifactURLs)
	cp.ParticipantData = maps.Clone(c.ParticipantData)
	cp.Shares = slices.Clone(c.Shares)
	if c.Design != nil {
		d := *c.Design
		d.Elements = slices.Clone(c.Design.Elements)
		cp.Design = &d
	}
	if c.TemplateID != nil {
		tid := *c.TemplateID
		cp.TemplateID = &tid
	}
	return &cp
}

// Filter narrows a tenant listing. Zero values match everything.
type Filter struct {
	Status        Status
	EventID       id.EventID
	ParticipantID id.ParticipantID
}

// Matches reports whether c satisfies the filter.
func (f Filter) Matches(c *Credential) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if !f.EventID.IsNil() && c.EventID != f.EventID {
		return false
	}
	if !f.ParticipantID.IsNil() && c.ParticipantID != f.ParticipantID {
		return false
	}
	return true
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is an offset window over a newest-first listing.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the window to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	p.Limit = min(p.Limit, MaxPageSize)
	p.Offset = max(p.Offset, 0)
	return p
}

// Transition describes a gated state change and the fields it sets.
type Transition struct {
	From           Status
	To             Status
	At             time.Time
	FailureCode    string
	FailureMessage string
	RevokeReason   string
}

// Apply mutates c to reflect the transition. The caller has already checked
// that c.Status == t.From.
func (t Transition) Apply(c *Credential) {
	c.Status = t.To
	c.UpdatedAt = t.At
	switch t.To {
	case StatusIssued:
		at := t.At
		c.IssuedAt = &at
		c.FailureCode, c.FailureMessage = "", ""
	case StatusFailed:
		c.FailureCode, c.FailureMessage = t.FailureCode, t.FailureMessage
	case StatusRevoked:
		at := t.At
		c.RevokedAt = &at
		c.RevokeReason = t.RevokeReason
	case StatusGenerating:
		c.FailureCode, c.FailureMessage = "", ""
	}
}

// Summary is the credential as published to webhooks and activity sinks. It
// carries no design or participant-data snapshot.
type Summary struct {
	CredentialID    string     `json:"credentialId"`
	ParticipantID   string     `json:"participantId"`
	EventID         string     `json:"eventId"`
	Title           string     `json:"title"`
	Type            Type       `json:"type"`
	Status          Status     `json:"status"`
	Fingerprint     string     `json:"fingerprint"`
	VerificationURL string     `json:"verificationUrl"`
	IssuedAt        *time.Time `json:"issuedAt,omitempty"`
	RevokedAt       *time.Time `json:"revokedAt,omitempty"`
	FailureCode     string     `json:"failureCode,omitempty"`
}

func (c *Credential) Summary() Summary {
	return Summary{
		CredentialID:    c.ID.String(),
		ParticipantID:   c.ParticipantID.String(),
		EventID:         c.EventID.String(),
		Title:           c.Title,
		Type:            c.Type,
		Status:          c.Status,
		Fingerprint:     c.Fingerprint,
		VerificationURL: c.VerificationURL,
		IssuedAt:        c.IssuedAt,
		RevokedAt:       c.RevokedAt,
		FailureCode:     c.FailureCode,
	}
}
