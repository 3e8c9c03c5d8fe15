// Package locale selects the user-facing apology strings returned in the
// synchronous reply XML, keyed by a user's language tag. The default locale
// is Spanish (`es`), matching the gateway's primary subscriber base.
package locale

import "golang.org/x/text/language"

// Default is the language used when a user has no language set or an
// unrecognized tag.
const Default = "es"

var supported = []language.Tag{
	language.Spanish,
	language.English,
}

var matcher = language.NewMatcher(supported)

// Resolve normalizes a stored language tag to one of the supported locales,
// falling back to Default on empty or unrecognized input.
func Resolve(tag string) string {
	if tag == "" {
		return Default
	}
	parsed, _, confidence := matcher.Match(language.Make(tag))
	if confidence == language.No {
		return Default
	}
	base, _ := parsed.Base()
	switch base.String() {
	case "en":
		return "en"
	default:
		return Default
	}
}

// messages keyed by [locale][key].
var messages = map[string]map[string]string{
	"es": {
		"cannot_process":      "No pudimos procesar tu mensaje.",
		"technical_difficulties": "Estamos teniendo dificultades técnicas. Por favor intenta de nuevo en unos momentos.",
		"generic_apology":     "Lo sentimos, no pudimos procesar tu mensaje en este momento.",
		"rate_limited_phone":  "Has enviado demasiados mensajes. Por favor espera un momento antes de volver a intentarlo.",
		"rate_limited_ip":     "Estamos recibiendo demasiadas solicitudes desde tu red. Por favor intenta de nuevo más tarde.",
	},
	"en": {
		"cannot_process":      "We couldn't process your message.",
		"technical_difficulties": "We're experiencing technical difficulties. Please try again shortly.",
		"generic_apology":     "Sorry, we couldn't process your message right now.",
		"rate_limited_phone":  "You've sent too many messages. Please wait a moment before trying again.",
		"rate_limited_ip":     "We're receiving too many requests from your network. Please try again later.",
	},
}

// Message returns the localized string for key in the resolved locale,
// falling back to the Default locale's string if the key or locale is
// unrecognized.
func Message(langTag, key string) string {
	loc := Resolve(langTag)
	if m, ok := messages[loc]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return messages[Default][key]
}

// CannotProcess returns the localized "we could not process your message"
// apology used by the webhook handler's early-return rule.
func CannotProcess(langTag string) string { return Message(langTag, "cannot_process") }

// TechnicalDifficulties returns the localized apology used on synchronous
// failures of steps 3 through 7 of the webhook pipeline.
func TechnicalDifficulties(langTag string) string { return Message(langTag, "technical_difficulties") }

// GenericApology returns the localized apology used on payload validation
// failure.
func GenericApology(langTag string) string { return Message(langTag, "generic_apology") }

// RateLimitedPhone returns the localized apology used when the per-phone
// rate-limit axis is exceeded.
func RateLimitedPhone(langTag string) string { return Message(langTag, "rate_limited_phone") }

// RateLimitedIP returns the localized apology used when the per-IP rate-limit
// axis is exceeded.
func RateLimitedIP(langTag string) string { return Message(langTag, "rate_limited_ip") }
