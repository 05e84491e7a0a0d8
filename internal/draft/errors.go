package draft

import "errors"

var (
	ErrRelativeRequired     = errors.New("draft: relative must be selected when booking for others")
	ErrIssueRequired        = errors.New("draft: issue is required")
	ErrDoctorRequired       = errors.New("draft: doctor is required")
	ErrScheduleRequired     = errors.New("draft: date and slot are required")
	ErrConsultationRequired = errors.New("draft: at least one consultation type is required")
	ErrInvalidBeneficiary   = errors.New("draft: for_user_type must be self or others")
)
