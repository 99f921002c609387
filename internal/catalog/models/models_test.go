package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certifier/internal/render"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
)

func TestNewEvent_RejectsInvertedDates(t *testing.T) {
	now := time.Now()
	start := now.Add(48 * time.Hour)
	end := now

	_, err := NewEvent(id.NewTenantID(), "Summit", &start, &end, now)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewEvent(id.NewTenantID(), "", nil, nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestEventStatus(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	before, after := now.Add(-time.Hour), now.Add(time.Hour)

	assert.Equal(t, EventUpcoming, (&Event{StartDate: &after}).Status(now))
	assert.Equal(t, EventActive, (&Event{StartDate: &before, EndDate: &after}).Status(now))
	assert.Equal(t, EventCompleted, (&Event{EndDate: &before}).Status(now))
	assert.Equal(t, EventActive, (&Event{}).Status(now))
}

func TestEventCapacity(t *testing.T) {
	e := &Event{Capacity: 1}
	assert.False(t, e.IsFull())
	e.ParticipantIDs = append(e.ParticipantIDs, id.NewParticipantID())
	assert.True(t, e.IsFull())
	assert.True(t, e.HasParticipant(e.ParticipantIDs[0]))
	assert.False(t, (&Event{}).IsFull())
}

func TestTemplateRevise_BoundsHistory(t *testing.T) {
	tpl := &Template{Version: 1, Design: render.Design{Width: 100}}
	for i := 0; i < MaxTemplateHistory+5; i++ {
		tpl.Revise(render.Design{Width: 200 + i}, time.Now())
	}

	assert.Equal(t, MaxTemplateHistory+6, tpl.Version)
	assert.Len(t, tpl.History, MaxTemplateHistory)
	assert.Equal(t, tpl.Version-1, tpl.History[len(tpl.History)-1].Version)
	assert.Equal(t, 200+MaxTemplateHistory+4, tpl.Design.Width)
}
