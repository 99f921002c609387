package models

import (
	"time"

	id "certifier/pkg/domain"
)

// BillingMode selects how a tenant pays for issuance. An empty mode means
// billing has not been configured.
type BillingMode string

const (
	BillingSubscription   BillingMode = "subscription"
	BillingPrepaidCredits BillingMode = "prepaid-credits"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Usable reports whether the subscription currently entitles the tenant to
// metered operations. past_due is a grace period.
func (s SubscriptionStatus) Usable() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Counter names a usage counter. The names double as plan-limit keys.
type Counter string

const (
	CounterCredentialsIssued Counter = "credentials-issued"
	CounterEventsCreated     Counter = "events-created"
	CounterParticipantsAdded Counter = "participants-added"
)

// Counters lists every usage counter.
var Counters = []Counter{CounterCredentialsIssued, CounterEventsCreated, CounterParticipantsAdded}

// Usage holds one value per counter.
type Usage struct {
	CredentialsIssued int64 `json:"credentialsIssued"`
	EventsCreated     int64 `json:"eventsCreated"`
	ParticipantsAdded int64 `json:"participantsAdded"`
}

// Get returns the value of a counter.
func (u Usage) Get(c Counter) int64 {
	switch c {
	case CounterCredentialsIssued:
		return u.CredentialsIssued
	case CounterEventsCreated:
		return u.EventsCreated
	case CounterParticipantsAdded:
		return u.ParticipantsAdded
	}
	return 0
}

// Inc increments a counter in place.
// Dec undoes one Inc. Counters never go below zero.
func (u *Usage) Dec(c Counter) {
	switch c {
	case CounterCredentialsIssued:
		u.CredentialsIssued = max(u.CredentialsIssued-1, 0)
	case CounterEventsCreated:
		u.EventsCreated = max(u.EventsCreated-1, 0)
	case CounterParticipantsAdded:
		u.ParticipantsAdded = max(u.ParticipantsAdded-1, 0)
	}
}

func (u *Usage) Inc(c Counter) {
	switch c {
	case CounterCredentialsIssued:
		u.CredentialsIssued++
	case CounterEventsCreated:
		u.EventsCreated++
	case CounterParticipantsAdded:
		u.ParticipantsAdded++
	}
}

// Tenant is an issuing organization and its billing state. Credits never go
// negative; period usage resets only when the period rolls over.
type Tenant struct {
	ID                 id.TenantID
	Name               string
	Status             Status
	BillingMode        BillingMode
	PlanID             string
	Credits            int64
	SubscriptionStatus SubscriptionStatus
	PeriodStart        time.Time
	PeriodEnd          time.Time
	PeriodUsage        Usage
	LifetimeUsage      Usage
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// PeriodExpired reports whether the billing period has ended at now.
func (t *Tenant) PeriodExpired(now time.Time) bool {
	return !t.PeriodEnd.IsZero() && !now.Before(t.PeriodEnd)
}

// NextPeriod returns the first period boundary pair that contains now,
// advancing from the current period end one month at a time.
func (t *Tenant) NextPeriod(now time.Time) (start, end time.Time) {
	start, end = t.PeriodEnd, t.PeriodEnd.AddDate(0, 1, 0)
	for !now.Before(end) {
		start, end = end, end.AddDate(0, 1, 0)
	}
	return start, end
}
