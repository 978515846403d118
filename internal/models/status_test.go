package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgreementStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from    AgreementStatus
		to      AgreementStatus
		allowed bool
	}{
		{AgreementStatusPending, AgreementStatusActive, true},
		{AgreementStatusPending, AgreementStatusDisputed, true},
		{AgreementStatusPending, AgreementStatusCancelled, true},
		{AgreementStatusPending, AgreementStatusCompleted, false},
		{AgreementStatusActive, AgreementStatusCompleted, true},
		{AgreementStatusActive, AgreementStatusDisputed, true},
		{AgreementStatusActive, AgreementStatusCancelled, true},
		{AgreementStatusActive, AgreementStatusPending, false},
		{AgreementStatusDisputed, AgreementStatusCancelled, true},
		{AgreementStatusDisputed, AgreementStatusActive, false},
		{AgreementStatusCompleted, AgreementStatusActive, false},
		{AgreementStatusCompleted, AgreementStatusCancelled, false},
		{AgreementStatusCancelled, AgreementStatusActive, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestAgreementStatus_IsTerminal(t *testing.T) {
	assert.True(t, AgreementStatusCompleted.IsTerminal())
	assert.True(t, AgreementStatusCancelled.IsTerminal())
	assert.False(t, AgreementStatusPending.IsTerminal())
	assert.False(t, AgreementStatusActive.IsTerminal())
	assert.False(t, AgreementStatusDisputed.IsTerminal())
}

func TestInstallmentStatus_CountsAsPaid(t *testing.T) {
	assert.True(t, InstallmentStatusPaid.CountsAsPaid())
	assert.True(t, InstallmentStatusProcessing.CountsAsPaid())
	assert.False(t, InstallmentStatusPending.CountsAsPaid())
}

func TestInstallmentStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, InstallmentStatusPending.CanTransitionTo(InstallmentStatusProcessing))
	assert.True(t, InstallmentStatusPending.CanTransitionTo(InstallmentStatusPaid))
	assert.True(t, InstallmentStatusProcessing.CanTransitionTo(InstallmentStatusPaid))
	assert.False(t, InstallmentStatusPaid.CanTransitionTo(InstallmentStatusPending))
	assert.False(t, InstallmentStatusPaid.CanTransitionTo(InstallmentStatusProcessing))
	assert.False(t, InstallmentStatusProcessing.CanTransitionTo(InstallmentStatusPending))
}

func TestAgreementStatus_IsValid(t *testing.T) {
	assert.True(t, AgreementStatusPending.IsValid())
	assert.False(t, AgreementStatus("archived").IsValid())
}
