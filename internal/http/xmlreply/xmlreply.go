// Package xmlreply builds the TwiML-shaped synchronous reply document the
// webhook handler writes back to the messaging provider in the same HTTP
// transaction: <Response><Message>...</Message></Response>.
package xmlreply

import (
	"encoding/xml"
	"net/http"

	"github.com/gin-gonic/gin"
)

// message is one <Message> child of <Response>.
type message struct {
	XMLName xml.Name `xml:"Message"`
	Body    string   `xml:",chardata"`
}

// response is the root <Response> element.
type response struct {
	XMLName  xml.Name  `xml:"Response"`
	Messages []message `xml:"Message"`
}

// Document renders a reply XML document containing zero or more messages, in
// order, as a byte slice with an XML declaration.
func Document(bodies ...string) []byte {
	r := response{}
	for _, b := range bodies {
		r.Messages = append(r.Messages, message{Body: b})
	}
	out, err := xml.MarshalIndent(r, "", "  ")
	if err != nil {
		// The response struct is always marshalable; this path is unreachable
		// in practice, but fall back to an empty envelope rather than panic.
		return []byte(xml.Header + `<Response></Response>`)
	}
	return append([]byte(xml.Header), out...)
}

// Write sets the content type and writes a reply document with a single
// <Message> body at the given HTTP status.
func Write(c *gin.Context, status int, body string) {
	c.Data(status, "text/xml; charset=utf-8", Document(body))
}

// WriteEmpty writes a reply document with no <Message> children, used when
// the provider expects an acknowledgment but no text reply is sent.
func WriteEmpty(c *gin.Context, status int) {
	c.Data(status, "text/xml; charset=utf-8", Document())
}

// WriteOK is a convenience for the common case of a 200 reply with a single
// message body.
func WriteOK(c *gin.Context, body string) {
	Write(c, http.StatusOK, body)
}
