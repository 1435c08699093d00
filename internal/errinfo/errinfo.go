package errinfo

// ErrorInfo is the structured error payload sent to the UI.
type ErrorInfo struct {
	ErrorCode  string   `json:"error_code"`
	Phase      string   `json:"phase,omitempty"`
	Subphase   string   `json:"subphase,omitempty"`
	Retryable  bool     `json:"retryable"`
	Actions    []string `json:"actions,omitempty"`
	ProviderID string   `json:"provider_id,omitempty"`
	ModelID    string   `json:"model_id,omitempty"`
	RequestID  string   `json:"request_id,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

const (
	CodePreconditionFailed    = "PRECONDITION_FAILED"
	CodeBusy                  = "BUSY"
	CodeEgressBlocked         = "EGRESS_BLOCKED_BY_POLICY"
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeProviderAuthFailed    = "PROVIDER_AUTH_FAILED"
	CodeProviderUnavailable   = "PROVIDER_UNAVAILABLE"
	CodeNetworkUnavailable    = "NETWORK_UNAVAILABLE"
	CodeResponseFormatInvalid = "RESPONSE_FORMAT_INVALID"
	CodeFontLoadFailed        = "FONT_LOAD_FAILED"
	CodeTextWriteFailed       = "TEXT_WRITE_FAILED"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeFileReadFailed        = "FILE_READ_FAILED"
	CodeFileWriteFailed       = "FILE_WRITE_FAILED"
	CodeUserCanceled          = "USER_CANCELED"
)

const (
	ActionRetry          = "retry"
	ActionOpenSettings   = "open_settings"
	ActionSelectFrame    = "select_frame"
	ActionSelectSegments = "select_segments"
)

const (
	PhaseExtract  = "extract"
	PhaseGenerate = "generate"
	PhaseApply    = "apply"
	PhaseSettings = "settings"
)

const (
	SubphasePrompt   = "prompt"
	SubphaseProvider = "provider"
	SubphaseMap      = "map"
)

// Error lets an ErrorInfo travel through error-returning code paths.
func (e *ErrorInfo) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.ErrorCode
	}
	return e.ErrorCode + ": " + e.Detail
}

func PreconditionFailed(phase, detail string, actions ...string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodePreconditionFailed,
		Phase:     phase,
		Retryable: false,
		Actions:   actions,
		Detail:    detail,
	}
}

func Busy(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeBusy,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    "a generation is already in progress",
	}
}

func ProviderNotConfigured(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderNotConfigured,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
		Detail:    "API Key is missing",
	}
}

func ProviderAuthFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderAuthFailed,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
		Detail:    detail,
	}
}

func ProviderUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func NetworkUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeNetworkUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func EgressBlocked(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeEgressBlocked,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func ResponseFormatInvalid(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeResponseFormatInvalid,
		Phase:     phase,
		Subphase:  SubphaseMap,
		Retryable: false,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func FontLoadFailed(detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFontLoadFailed,
		Phase:     PhaseApply,
		Retryable: false,
		Detail:    detail,
	}
}

func TextWriteFailed(detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeTextWriteFailed,
		Phase:     PhaseApply,
		Retryable: false,
		Detail:    detail,
	}
}

func ValidationFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeValidationFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func FileReadFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileReadFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func FileWriteFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileWriteFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func UserCanceled(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeUserCanceled,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}
