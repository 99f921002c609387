package handler

import (
	"time"

	"certifier/internal/quota"
	"certifier/internal/tenant/models"
)

type UsageResponse struct {
	Success            bool             `json:"success"`
	TenantID           string           `json:"tenantId"`
	BillingMode        string           `json:"billingMode"`
	PlanID             string           `json:"planId,omitempty"`
	SubscriptionStatus string           `json:"subscriptionStatus,omitempty"`
	Credits            int64            `json:"credits"`
	PeriodStart        *time.Time       `json:"periodStart,omitempty"`
	PeriodEnd          *time.Time       `json:"periodEnd,omitempty"`
	Period             models.Usage     `json:"period"`
	Lifetime           models.Usage     `json:"lifetime"`
	Limits             map[string]int64 `json:"limits,omitempty"`
}

func toUsageResponse(u *quota.Usage) *UsageResponse {
	t := u.Tenant
	resp := &UsageResponse{
		Success:            true,
		TenantID:           t.ID.String(),
		BillingMode:        string(t.BillingMode),
		PlanID:             t.PlanID,
		SubscriptionStatus: string(t.SubscriptionStatus),
		Credits:            t.Credits,
		PeriodStart:        timePtr(t.PeriodStart),
		PeriodEnd:          timePtr(t.PeriodEnd),
		Period:             t.PeriodUsage,
		Lifetime:           t.LifetimeUsage,
	}
	if u.Plan != nil {
		resp.Limits = make(map[string]int64, len(models.Counters))
		for _, c := range models.Counters {
			resp.Limits[string(c)] = u.Plan.Limit(c)
		}
	}
	return resp
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
