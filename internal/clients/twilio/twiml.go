package twilio

import (
	"encoding/xml"
	"strings"
)

const TwiMLContentType = "text/xml; charset=utf-8"

type twimlResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// MessagingResponse renders a TwiML reply. Blank bodies produce an empty <Response/>,
// which tells Twilio not to send anything back.
func MessagingResponse(bodies ...string) ([]byte, error) {
	resp := twimlResponse{}
	for _, b := range bodies {
		if strings.TrimSpace(b) != "" {
			resp.Messages = append(resp.Messages, b)
		}
	}
	out, err := xml.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
