package models

// AgreementStatus — статус жизненного цикла договора.
type AgreementStatus string

const (
	AgreementStatusPending   AgreementStatus = "pending"
	AgreementStatusActive    AgreementStatus = "active"
	AgreementStatusCompleted AgreementStatus = "completed"
	AgreementStatusDisputed  AgreementStatus = "disputed"
	AgreementStatusCancelled AgreementStatus = "cancelled"
)

func (s AgreementStatus) IsValid() bool {
	switch s {
	case AgreementStatusPending, AgreementStatusActive, AgreementStatusCompleted,
		AgreementStatusDisputed, AgreementStatusCancelled:
		return true
	}
	return false
}

// IsTerminal сообщает, что из статуса нет допустимых переходов.
func (s AgreementStatus) IsTerminal() bool {
	return s == AgreementStatusCompleted || s == AgreementStatusCancelled
}

// CanTransitionTo проверяет допустимость перехода между статусами.
// Completed — терминальный статус: любой переход из него запрещён.
// Disputed и cancelled достижимы только из pending и active.
func (s AgreementStatus) CanTransitionTo(next AgreementStatus) bool {
	transitions := map[AgreementStatus][]AgreementStatus{
		AgreementStatusPending:   {AgreementStatusActive, AgreementStatusDisputed, AgreementStatusCancelled},
		AgreementStatusActive:    {AgreementStatusCompleted, AgreementStatusDisputed, AgreementStatusCancelled},
		AgreementStatusDisputed:  {AgreementStatusCancelled},
		AgreementStatusCompleted: {},
		AgreementStatusCancelled: {},
	}

	allowed, ok := transitions[s]
	if !ok {
		return false
	}

	for _, status := range allowed {
		if status == next {
			return true
		}
	}
	return false
}

// InstallmentStatus — статус отдельного взноса.
// Processing — переходное состояние между авторизацией шлюза и подтверждением
// расчёта: учитывается как оплаченный для прогресса и агрегатов, но не
// закрывает договор.
type InstallmentStatus string

const (
	InstallmentStatusPending    InstallmentStatus = "pending"
	InstallmentStatusProcessing InstallmentStatus = "processing"
	InstallmentStatusPaid       InstallmentStatus = "paid"
)

func (s InstallmentStatus) IsValid() bool {
	switch s {
	case InstallmentStatusPending, InstallmentStatusProcessing, InstallmentStatusPaid:
		return true
	}
	return false
}

// CountsAsPaid сообщает, учитывается ли взнос в прогрессе и агрегатах.
func (s InstallmentStatus) CountsAsPaid() bool {
	return s == InstallmentStatusPaid || s == InstallmentStatusProcessing
}

func (s InstallmentStatus) CanTransitionTo(next InstallmentStatus) bool {
	switch s {
	case InstallmentStatusPending:
		return next == InstallmentStatusProcessing || next == InstallmentStatusPaid
	case InstallmentStatusProcessing:
		return next == InstallmentStatusPaid
	}
	return false
}

// Роли пользователей платформы.
const (
	RoleStudent = "student"
	RoleWriter  = "writer"
)

// ValidAgreementStatuses список валидных статусов договоров.
var ValidAgreementStatuses = map[string]struct{}{
	string(AgreementStatusPending):   {},
	string(AgreementStatusActive):    {},
	string(AgreementStatusCompleted): {},
	string(AgreementStatusDisputed):  {},
	string(AgreementStatusCancelled): {},
}
