package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes shared across all layers.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_005"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_006"
	ErrCodeTimeout            ErrorCode = "COMMON_007"
	ErrCodeSerialization      ErrorCode = "COMMON_008"
	ErrCodeDatabaseError      ErrorCode = "COMMON_009"
	ErrCodeCacheError         ErrorCode = "COMMON_010"
	ErrCodeExternalService    ErrorCode = "COMMON_011"
	ErrCodeNotImplemented     ErrorCode = "COMMON_012"
)

// Configuration error codes. Any CFG error is fatal and aborts the run
// before record processing begins.
const (
	ErrCodeConfigInvalid     ErrorCode = "CFG_001"
	ErrCodeConfigPathMissing ErrorCode = "CFG_002"
	ErrCodeSchemaInvalid     ErrorCode = "CFG_003"
)

// Curation error codes. Per-record conditions; isolated and counted,
// never fatal to the batch.
const (
	ErrCodeRecordStructural   ErrorCode = "CUR_001"
	ErrCodeCASFormatInvalid   ErrorCode = "CUR_002"
	ErrCodeCASChecksumInvalid ErrorCode = "CUR_003"
	ErrCodeIdentityAmbiguous  ErrorCode = "CUR_004"
	ErrCodeIdentityConflict   ErrorCode = "CUR_005"
	ErrCodeCompoundNotFound   ErrorCode = "CUR_006"
)

// Enrichment error codes: the external service was unreachable, rate
// limited, or returned nothing usable. Always recovered locally as
// "no candidate".
const (
	ErrCodeLookupUnavailable ErrorCode = "ENR_001"
	ErrCodeLookupRateLimited ErrorCode = "ENR_002"
	ErrCodeLookupNoMatch     ErrorCode = "ENR_003"
	ErrCodeLookupParseError  ErrorCode = "ENR_004"
)

// Validation error codes. One per rule class checked by the schema
// validator; surfaced in the diagnostic report, never fatal.
const (
	ErrCodeValidationRequired   ErrorCode = "VAL_001"
	ErrCodeValidationType       ErrorCode = "VAL_002"
	ErrCodeValidationVocabulary ErrorCode = "VAL_003"
	ErrCodeValidationCrossField ErrorCode = "VAL_004"
	ErrCodeValidationStructure  ErrorCode = "VAL_005"
)

// Artifact / report I/O error codes.
const (
	ErrCodeArtifactRead  ErrorCode = "ART_001"
	ErrCodeArtifactWrite ErrorCode = "ART_002"
	ErrCodeReportWrite   ErrorCode = "ART_003"
)

// Aliases used by the generic factory functions.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeRateLimit    = ErrCodeTooManyRequests
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeConfigInvalid:     "invalid configuration",
	ErrCodeConfigPathMissing: "configured path does not exist",
	ErrCodeSchemaInvalid:     "malformed schema definition",

	ErrCodeRecordStructural:   "malformed input record",
	ErrCodeCASFormatInvalid:   "CAS number format is invalid",
	ErrCodeCASChecksumInvalid: "CAS number checksum is invalid",
	ErrCodeIdentityAmbiguous:  "name maps to multiple CAS numbers",
	ErrCodeIdentityConflict:   "same-priority sources disagree",
	ErrCodeCompoundNotFound:   "compound not found",

	ErrCodeLookupUnavailable: "enrichment service unavailable",
	ErrCodeLookupRateLimited: "enrichment service rate limited",
	ErrCodeLookupNoMatch:     "no match from enrichment service",
	ErrCodeLookupParseError:  "failed to parse enrichment response",

	ErrCodeValidationRequired:   "required field missing",
	ErrCodeValidationType:       "field type mismatch",
	ErrCodeValidationVocabulary: "value not in controlled vocabulary",
	ErrCodeValidationCrossField: "cross-field rule violated",
	ErrCodeValidationStructure:  "record structure invalid",

	ErrCodeArtifactRead:  "failed to read artifact",
	ErrCodeArtifactWrite: "failed to write artifact",
	ErrCodeReportWrite:   "failed to write report row",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsFatal reports whether the code belongs to the configuration class,
// the only class that aborts a batch run before processing begins.
func IsFatal(code ErrorCode) bool {
	return strings.HasPrefix(string(code), "CFG_")
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
