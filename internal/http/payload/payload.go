// Package payload validates and re-shapes the inbound webhook form body into
// a typed record, wrapping go-playground/validator/v10 with a handful of
// named custom rules registered against regex constants.
package payload

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	tagWhatsAppFrom  = "wa_from"
	tagProviderSID   = "provider_sid"
	maxMediaItems    = 10
)

var (
	fromRegex = regexp.MustCompile(`^whatsapp:\+\d+$`)
	sidRegex  = regexp.MustCompile(`^[A-Z]{2}[a-z0-9]{32}$`)
)

var (
	once     sync.Once
	validate *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation(tagWhatsAppFrom, validateWhatsAppFrom)
		_ = validate.RegisterValidation(tagProviderSID, validateProviderSID)
	})
	return validate
}

func validateWhatsAppFrom(fl validator.FieldLevel) bool {
	return fromRegex.MatchString(fl.Field().String())
}

func validateProviderSID(fl validator.FieldLevel) bool {
	return sidRegex.MatchString(fl.Field().String())
}

// Media is one optional inbound media attachment, numbered 0..9 in the
// provider's form fields.
type Media struct {
	URL         string
	ContentType string
}

// InboundMessage is the typed, validated shape of a webhook form POST.
type InboundMessage struct {
	From        string `validate:"required,wa_from"`
	Body        string
	MessageSID  string `validate:"required,provider_sid"`
	ProfileName string
	NumMedia    int
	Media       []Media
	Passthrough map[string]string
}

// FieldError describes one failed validation rule, field-addressable for
// structured warn-level logging.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

// ValidationError wraps one or more FieldErrors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return strings.Join(parts, "; ")
}

// knownFields are the form keys consumed into InboundMessage's named fields;
// anything else is collected into Passthrough.
var knownFields = map[string]bool{
	"From": true, "Body": true, "MessageSid": true, "ProfileName": true, "NumMedia": true,
}

func isMediaField(key string) bool {
	return strings.HasPrefix(key, "MediaUrl") || strings.HasPrefix(key, "MediaContentType")
}

// Parse extracts an InboundMessage from form, validates it, and returns a
// *ValidationError on failure (never a bare validator.ValidationErrors).
func Parse(form url.Values) (*InboundMessage, error) {
	msg := &InboundMessage{
		From:        form.Get("From"),
		Body:        form.Get("Body"),
		MessageSID:  form.Get("MessageSid"),
		ProfileName: form.Get("ProfileName"),
		Passthrough: map[string]string{},
	}

	if raw := form.Get("NumMedia"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, &ValidationError{Errors: []FieldError{
				{Field: "NumMedia", Tag: "numeric", Message: "must be a non-negative integer"},
			}}
		}
		msg.NumMedia = n
	}

	for i := 0; i < maxMediaItems; i++ {
		idx := strconv.Itoa(i)
		u := form.Get("MediaUrl" + idx)
		ct := form.Get("MediaContentType" + idx)
		if u == "" && ct == "" {
			continue
		}
		if u != "" {
			if _, err := url.ParseRequestURI(u); err != nil {
				return nil, &ValidationError{Errors: []FieldError{
					{Field: "MediaUrl" + idx, Tag: "url", Message: "must be a valid URL"},
				}}
			}
		}
		msg.Media = append(msg.Media, Media{URL: u, ContentType: ct})
	}

	for key, vals := range form {
		if knownFields[key] || isMediaField(key) || len(vals) == 0 {
			continue
		}
		msg.Passthrough[key] = vals[0]
	}

	if err := engine().Struct(msg); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, &ValidationError{Errors: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
		}
		ve := &ValidationError{Errors: make([]FieldError, 0, len(verrs))}
		for _, fe := range verrs {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   fe.Field(),
				Tag:     fe.Tag(),
				Message: describeTag(fe.Field(), fe.Tag()),
			})
		}
		return nil, ve
	}

	return msg, nil
}

func describeTag(field, tag string) string {
	switch tag {
	case "required":
		return field + " is required"
	case "wa_from":
		return "From must match whatsapp:+<digits>"
	case "provider_sid":
		return "MessageSid must match the provider's message id shape"
	default:
		return field + " failed " + tag
	}
}
