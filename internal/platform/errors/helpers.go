package errors

import (
	stderrors "errors"

	"github.com/louisbranch/narrative-engine/internal/platform/errors/i18n"
)

// DefaultLocale is the default locale for error messages.
const DefaultLocale = "en-US"

// Localize formats the user-facing message for err using the i18n catalog
// for locale, defaulting to en-US. Returns the empty string if err is not a
// domain error.
func Localize(err error, locale string) string {
	var appErr *Error
	if !stderrors.As(err, &appErr) {
		return ""
	}
	if locale == "" {
		locale = DefaultLocale
	}
	catalog := i18n.GetCatalog(locale)
	return catalog.Format(string(appErr.Code), appErr.Metadata)
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata extracts metadata from an error if present.
// Returns nil if the error is not a domain error or has no metadata.
func GetMetadata(err error) map[string]string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Metadata
	}
	return nil
}
