package validation

import (
	"fmt"

	dErrors "certifier/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed JSON request body size (1 MB).
	// Design documents are carried inline, so this is larger than a plain API body.
	MaxBodySize = 1 << 20

	// MaxUploadSize is the maximum size of an uploaded credential artifact (10 MB).
	MaxUploadSize = 10 << 20
)

// Slice element count limits
const (
	// MaxWebhookEvents is the maximum number of event kinds per subscription.
	MaxWebhookEvents = 20

	// MaxSkills is the maximum number of skills listed on a participant.
	MaxSkills = 50

	// MaxOverrides is the maximum number of participant-data override keys.
	MaxOverrides = 50
)

// String element length limits
const (
	// MaxTitleLength is the maximum length of a credential or event title.
	MaxTitleLength = 200

	// MaxNameLength is the maximum length of a participant display name.
	MaxNameLength = 200

	// MaxEmailLength is the maximum length of an email address.
	MaxEmailLength = 255

	// MaxURLLength is the maximum length of a webhook target URL.
	MaxURLLength = 2048

	// MaxOverrideValueLength is the maximum length of one override value.
	MaxOverrideValueLength = 1000
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if len(v) > max {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
		}
	}
	return nil
}
