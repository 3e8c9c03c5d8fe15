package payload

import (
	"net/url"
	"testing"
)

func TestParse_ValidMinimalMessage(t *testing.T) {
	form := url.Values{
		"From":       {"whatsapp:+14155550001"},
		"Body":       {"Hola"},
		"MessageSid": {"SMabcdefghijklmnopqrstuvwxyz012345"},
	}
	msg, err := Parse(form)
	if err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if msg.From != "whatsapp:+14155550001" || msg.Body != "Hola" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestParse_EmptyBodyAllowed(t *testing.T) {
	form := url.Values{
		"From":       {"whatsapp:+14155550001"},
		"Body":       {""},
		"MessageSid": {"SMabcdefghijklmnopqrstuvwxyz012345"},
	}
	if _, err := Parse(form); err != nil {
		t.Fatalf("expected empty body to be allowed, got %v", err)
	}
}

func TestParse_InvalidFromRejected(t *testing.T) {
	form := url.Values{
		"From":       {"+14155550001"},
		"Body":       {"Hola"},
		"MessageSid": {"SMabcdefghijklmnopqrstuvwxyz012345"},
	}
	_, err := Parse(form)
	if err == nil {
		t.Fatalf("expected validation error for missing whatsapp: prefix")
	}
	ve, ok := err.(*ValidationError)
	if !ok || len(ve.Errors) == 0 {
		t.Fatalf("expected *ValidationError with field errors, got %v", err)
	}
}

func TestParse_InvalidMessageSidRejected(t *testing.T) {
	form := url.Values{
		"From":       {"whatsapp:+14155550001"},
		"Body":       {"Hola"},
		"MessageSid": {"not-a-valid-sid"},
	}
	if _, err := Parse(form); err == nil {
		t.Fatalf("expected validation error for malformed MessageSid")
	}
}

func TestParse_MediaFields(t *testing.T) {
	form := url.Values{
		"From":             {"whatsapp:+14155550001"},
		"Body":             {""},
		"MessageSid":       {"SMabcdefghijklmnopqrstuvwxyz012345"},
		"NumMedia":         {"1"},
		"MediaUrl0":        {"https://example.com/image.jpg"},
		"MediaContentType0": {"image/jpeg"},
	}
	msg, err := Parse(form)
	if err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if msg.NumMedia != 1 || len(msg.Media) != 1 || msg.Media[0].URL != "https://example.com/image.jpg" {
		t.Fatalf("unexpected media: %+v", msg)
	}
}

func TestParse_InvalidMediaURLRejected(t *testing.T) {
	form := url.Values{
		"From":       {"whatsapp:+14155550001"},
		"Body":       {""},
		"MessageSid": {"SMabcdefghijklmnopqrstuvwxyz012345"},
		"MediaUrl0":  {"not a url"},
	}
	if _, err := Parse(form); err == nil {
		t.Fatalf("expected validation error for malformed media URL")
	}
}

func TestParse_NegativeNumMediaRejected(t *testing.T) {
	form := url.Values{
		"From":       {"whatsapp:+14155550001"},
		"Body":       {""},
		"MessageSid": {"SMabcdefghijklmnopqrstuvwxyz012345"},
		"NumMedia":   {"-1"},
	}
	if _, err := Parse(form); err == nil {
		t.Fatalf("expected validation error for negative NumMedia")
	}
}

func TestParse_PassthroughFieldsCollected(t *testing.T) {
	form := url.Values{
		"From":        {"whatsapp:+14155550001"},
		"Body":        {"Hola"},
		"MessageSid":  {"SMabcdefghijklmnopqrstuvwxyz012345"},
		"AccountSid":  {"ACxxxx"},
		"ApiVersion":  {"2010-04-01"},
	}
	msg, err := Parse(form)
	if err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if msg.Passthrough["AccountSid"] != "ACxxxx" || msg.Passthrough["ApiVersion"] != "2010-04-01" {
		t.Fatalf("expected passthrough fields preserved, got %+v", msg.Passthrough)
	}
}
