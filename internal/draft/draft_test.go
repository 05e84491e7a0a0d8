package draft

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/patient-portal/internal/consultation"
)

func completeDraft() Draft {
	d := Draft{ID: "d-1", ForUserType: Self, Issue: "headache", Date: "2025-12-10", Slot: "10:00 AM - 11:00 AM"}
	d.SetDoctor(Doctor{ID: "doc-a", Name: "Dr. A"})
	d.ConsultationTypes = []consultation.Modality{consultation.Video}
	return d
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Draft)
		want   error
	}{
		{"complete", func(*Draft) {}, nil},
		{"no doctor", func(d *Draft) { d.Doctor = nil; d.DoctorID = "" }, ErrDoctorRequired},
		{"others without relative", func(d *Draft) { d.ForUserType = Others }, ErrRelativeRequired},
		{"others with relative", func(d *Draft) { d.ForUserType = Others; d.RelativeID = "r-1" }, nil},
		{"missing beneficiary", func(d *Draft) { d.ForUserType = "" }, ErrInvalidBeneficiary},
		{"blank issue", func(d *Draft) { d.Issue = "   " }, ErrIssueRequired},
		{"no modality", func(d *Draft) { d.ConsultationTypes = nil }, ErrConsultationRequired},
		{"no slot", func(d *Draft) { d.ClearSlot() }, ErrScheduleRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := completeDraft()
			tt.mutate(&d)
			err := d.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestMarshalIncludesSubtype(t *testing.T) {
	d := completeDraft()
	d.ConsultationTypes = []consultation.Modality{consultation.Audio}
	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "by voicecall", fields["consultation_subtype"])
	assert.Equal(t, "doc-a", fields["doctor_id"])
	assert.Equal(t, []any{"audio"}, fields["consultation_type"])

	var back Draft
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, d, back)
}

func TestCloneDoesNotAlias(t *testing.T) {
	d := completeDraft()
	c := d.Clone()
	c.Doctor.Name = "changed"
	c.ConsultationTypes[0] = consultation.Audio
	assert.Equal(t, "Dr. A", d.Doctor.Name)
	assert.Equal(t, consultation.Video, d.ConsultationTypes[0])
}

func TestParseBeneficiary(t *testing.T) {
	b, err := ParseBeneficiary(" Others ")
	require.NoError(t, err)
	assert.Equal(t, Others, b)
	_, err = ParseBeneficiary("friend")
	assert.ErrorIs(t, err, ErrInvalidBeneficiary)
}
