package telephony

import (
	"net/url"
	"strings"

	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
)

const (
	DefaultGreeting = "Thank you for calling Chase. How can I help you today?"
	StreamPath      = "/twilio/stream"
)

type AnswerOptions struct {
	// PublicHost is the externally reachable host, without scheme.
	PublicHost string
	Caller     string
	// GreetingURL plays a prerecorded greeting; Greeting is spoken otherwise.
	GreetingURL string
	Greeting    string
}

// StreamURL is the websocket endpoint Twilio connects the call audio to.
func StreamURL(publicHost string) string {
	host := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(publicHost, "https://"), "http://"), "/")
	return (&url.URL{Scheme: "wss", Host: host, Path: StreamPath}).String()
}

// AnswerTwiML builds the voice response for an incoming call: a greeting
// followed by a bidirectional media stream.
func AnswerTwiML(opts AnswerOptions) (string, error) {
	var verbs []twiml.Element
	switch {
	case opts.GreetingURL != "":
		verbs = append(verbs, &twiml.VoicePlay{Url: opts.GreetingURL})
	default:
		greeting := opts.Greeting
		if greeting == "" {
			greeting = DefaultGreeting
		}
		verbs = append(verbs, &twiml.VoiceSay{Message: greeting})
	}

	stream := &twiml.VoiceStream{Url: StreamURL(opts.PublicHost)}
	if opts.Caller != "" {
		stream.InnerElements = []twiml.Element{
			&twiml.VoiceParameter{Name: CallerParameter, Value: opts.Caller},
		}
	}
	verbs = append(verbs, &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}})

	return twiml.Voice(verbs)
}

// SignatureValidator checks X-Twilio-Signature on webhook requests.
type SignatureValidator struct {
	v client.RequestValidator
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{v: client.NewRequestValidator(authToken)}
}

// Validate reports whether signature matches the full request URL and its
// POST form parameters.
func (s *SignatureValidator) Validate(fullURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	return s.v.Validate(fullURL, params, signature)
}
