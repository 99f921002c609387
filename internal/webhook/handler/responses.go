package handler

import (
	"time"

	"certifier/internal/webhook"
)

type SubscriptionResponse struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Events       []string   `json:"events"`
	Enabled      bool       `json:"enabled"`
	SuccessCount int64      `json:"successCount"`
	FailureCount int64      `json:"failureCount"`
	LastError    string     `json:"lastError,omitempty"`
	LastErrorAt  *time.Time `json:"lastErrorAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// RegisterResponse is the only response that carries the signing secret.
type RegisterResponse struct {
	Success bool                 `json:"success"`
	Webhook SubscriptionResponse `json:"webhook"`
	Secret  string               `json:"secret"`
}

type SubscriptionEnvelope struct {
	Success bool                 `json:"success"`
	Webhook SubscriptionResponse `json:"webhook"`
}

type ListResponse struct {
	Success  bool                   `json:"success"`
	Webhooks []SubscriptionResponse `json:"webhooks"`
}

type DeliveryResponse struct {
	ID              string     `json:"id"`
	Event           string     `json:"event"`
	URL             string     `json:"url"`
	Status          string     `json:"status"`
	HTTPStatus      int        `json:"httpStatus,omitempty"`
	ResponsePreview string     `json:"responsePreview,omitempty"`
	ElapsedMS       int64      `json:"elapsedMs"`
	Attempts        int        `json:"attempts"`
	NextRetryAt     *time.Time `json:"nextRetryAt,omitempty"`
	Payload         string     `json:"payload"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type DeliveriesResponse struct {
	Success    bool               `json:"success"`
	Deliveries []DeliveryResponse `json:"deliveries"`
}

func toSubscriptionResponse(sub *webhook.Subscription) SubscriptionResponse {
	events := make([]string, 0, len(sub.Events))
	for _, e := range sub.Events {
		events = append(events, string(e))
	}
	return SubscriptionResponse{
		ID:           sub.ID.String(),
		URL:          sub.URL,
		Events:       events,
		Enabled:      sub.Enabled,
		SuccessCount: sub.SuccessCount,
		FailureCount: sub.FailureCount,
		LastError:    sub.LastError,
		LastErrorAt:  sub.LastErrorAt,
		CreatedAt:    sub.CreatedAt,
	}
}

func toDeliveryResponse(d *webhook.Delivery) DeliveryResponse {
	resp := DeliveryResponse{
		ID:              d.ID.String(),
		Event:           string(d.Event),
		URL:             d.URL,
		Status:          string(d.Status),
		HTTPStatus:      d.HTTPStatus,
		ResponsePreview: d.ResponsePreview,
		ElapsedMS:       d.ElapsedMS,
		Attempts:        d.Attempts,
		Payload:         string(d.Payload),
		CreatedAt:       d.CreatedAt,
	}
	// A pending row's NextRetryAt is only a lease.
	if d.Status == webhook.DeliveryRetry {
		resp.NextRetryAt = d.NextRetryAt
	}
	return resp
}
