package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the configuration's field rules and the cross-field rules
// the tags cannot express. It returns an AppError with a validation code.
func (c ReminderConfig) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		return NewAppError(ErrCodeValidationMissingField, fmt.Sprintf("reminder config for tenant %q is invalid", c.TenantID), err)
	}
	seen := make(map[ChannelType]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if seen[ch] {
			return NewAppError(ErrCodeValidationInvalidChannel, fmt.Sprintf("channel %q listed twice", ch), nil)
		}
		seen[ch] = true
	}
	for key := range c.Templates {
		if key.Stage < 0 {
			return NewAppError(ErrCodeValidationInvalidStage, fmt.Sprintf("template stage %d is negative", int(key.Stage)), nil)
		}
		if key.Channel != "" && !key.Channel.Valid() {
			return NewAppError(ErrCodeValidationInvalidChannel, fmt.Sprintf("template channel %q is unknown", key.Channel), nil)
		}
	}
	// A reminder with an empty body is never sent.
	for _, stage := range c.Stages() {
		for _, ch := range c.Channels {
			if strings.TrimSpace(c.Template(stage, ch)) == "" {
				return NewAppError(ErrCodeConfigTemplateMissing,
					fmt.Sprintf("no template for stage %s on channel %s", stage, ch), nil)
			}
		}
	}
	return nil
}

// NormalizeHardwareID canonicalizes a MAC-style hardware identifier to upper
// case with colon separators. Identifiers that are not 12 hex digits are
// returned trimmed and upper-cased but otherwise unchanged.
func NormalizeHardwareID(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	hex := strings.NewReplacer(":", "", "-", "", ".", "").Replace(s)
	if len(hex) != 12 || strings.Trim(hex, "0123456789ABCDEF") != "" {
		return s
	}
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex[i : i+2])
	}
	return b.String()
}
