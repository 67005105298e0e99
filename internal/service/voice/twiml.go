package voice

import (
	"encoding/xml"
	"fmt"
)

// TwiML verb types. Only the small subset this service speaks is modeled.

type say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	Language      string   `xml:"language,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr"`
	Timeout       int      `xml:"timeout,attr"`
	Says          []say
}

type response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// render marshals the response document with the XML declaration Twilio
// expects. Marshal can only fail on unrepresentable types, so an error here
// is a programming bug.
func render(doc response) string {
	out, err := xml.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("voice: marshal twiml: %v", err))
	}
	return xml.Header + string(out)
}
