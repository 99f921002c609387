package handler

import (
	"time"

	"certifier/internal/credential/models"
	"certifier/internal/issuance"
	dErrors "certifier/pkg/domain-errors"
)

type ShareResponse struct {
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient,omitempty"`
	SharedAt  time.Time `json:"sharedAt"`
}

// CredentialResponse is the tenant's view of a credential. The design and
// participant-data snapshots are included so the record can be re-rendered
// client side.
type CredentialResponse struct {
	ID               string            `json:"id"`
	ParticipantID    string            `json:"participantId"`
	EventID          string            `json:"eventId"`
	TemplateID       string            `json:"templateId,omitempty"`
	Title            string            `json:"title"`
	Type             string            `json:"type"`
	Source           string            `json:"source"`
	Status           string            `json:"status"`
	Fingerprint      string            `json:"fingerprint"`
	VerificationURL  string            `json:"verificationUrl"`
	QRCode           string            `json:"qrCode"`
	ArtifactURLs     map[string]string `json:"artifactUrls"`
	ParticipantData  map[string]string `json:"participantData,omitempty"`
	FailureCode      string            `json:"failureCode,omitempty"`
	FailureMessage   string            `json:"failureMessage,omitempty"`
	IssuedAt         *time.Time        `json:"issuedAt,omitempty"`
	RevokedAt        *time.Time        `json:"revokedAt,omitempty"`
	RevokeReason     string            `json:"revokeReason,omitempty"`
	DownloadCount    int64             `json:"downloadCount"`
	LastDownloadedAt *time.Time        `json:"lastDownloadedAt,omitempty"`
	Shares           []ShareResponse   `json:"shares"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// IssueResponse is returned with 201 even when the artifact failed; Code and
// Message then describe the retriable failure.
type IssueResponse struct {
	Success           bool               `json:"success"`
	Credential        CredentialResponse `json:"credential"`
	HasGeneratedImage bool               `json:"hasGeneratedImage"`
	Code              string             `json:"code,omitempty"`
	Message           string             `json:"message,omitempty"`
}

type CredentialEnvelope struct {
	Success    bool               `json:"success"`
	Credential CredentialResponse `json:"credential"`
}

type ListResponse struct {
	Success     bool                 `json:"success"`
	Credentials []CredentialResponse `json:"credentials"`
	Total       int                  `json:"total"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

type BatchFailureResponse struct {
	Index         int    `json:"index"`
	ParticipantID string `json:"participantId"`
	Code          string `json:"code"`
	Reason        string `json:"reason"`
	CredentialID  string `json:"credentialId,omitempty"`
}

type BatchResponse struct {
	Success   bool                   `json:"success"`
	Successes []CredentialResponse   `json:"successes"`
	Failures  []BatchFailureResponse `json:"failures"`
}

func toCredentialResponse(c *models.Credential) CredentialResponse {
	resp := CredentialResponse{
		ID:               c.ID.String(),
		ParticipantID:    c.ParticipantID.String(),
		EventID:          c.EventID.String(),
		Title:            c.Title,
		Type:             string(c.Type),
		Source:           string(c.Source),
		Status:           string(c.Status),
		Fingerprint:      c.Fingerprint,
		VerificationURL:  c.VerificationURL,
		QRCode:           c.QRCode,
		ArtifactURLs:     make(map[string]string, len(c.ArtifactURLs)),
		ParticipantData:  c.ParticipantData,
		FailureCode:      c.FailureCode,
		FailureMessage:   c.FailureMessage,
		IssuedAt:         c.IssuedAt,
		RevokedAt:        c.RevokedAt,
		RevokeReason:     c.RevokeReason,
		DownloadCount:    c.DownloadCount,
		LastDownloadedAt: c.LastDownloadAt,
		Shares:           make([]ShareResponse, 0, len(c.Shares)),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	if c.TemplateID != nil {
		resp.TemplateID = c.TemplateID.String()
	}
	for format, url := range c.ArtifactURLs {
		resp.ArtifactURLs[string(format)] = url
	}
	for _, s := range c.Shares {
		resp.Shares = append(resp.Shares, ShareResponse{Channel: s.Channel, Recipient: s.Recipient, SharedAt: s.SharedAt})
	}
	return resp
}

func toIssueResponse(res *issuance.Result) IssueResponse {
	resp := IssueResponse{
		Success:           true,
		Credential:        toCredentialResponse(res.Credential),
		HasGeneratedImage: res.HasGeneratedImage(),
	}
	if res.Failure != nil {
		resp.Code = string(dErrors.CodeOf(res.Failure))
		resp.Message = res.Failure.Error()
	}
	return resp
}

func toBatchResponse(res *issuance.BatchResult) BatchResponse {
	resp := BatchResponse{
		Success:   len(res.Failures) == 0,
		Successes: make([]CredentialResponse, 0, len(res.Successes)),
		Failures:  make([]BatchFailureResponse, 0, len(res.Failures)),
	}
	for _, c := range res.Successes {
		resp.Successes = append(resp.Successes, toCredentialResponse(c))
	}
	for _, f := range res.Failures {
		item := BatchFailureResponse{
			Index:         f.Index,
			ParticipantID: f.ParticipantID.String(),
			Code:          string(f.Code),
			Reason:        f.Reason,
		}
		if f.CredentialID != nil {
			item.CredentialID = f.CredentialID.String()
		}
		resp.Failures = append(resp.Failures, item)
	}
	return resp
}
