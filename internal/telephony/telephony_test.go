package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/callgate/internal/audio"
)

func TestParseInbound(t *testing.T) {
	start := []byte(`{"event":"start","sequenceNumber":"1","start":{"streamSid":"MZ1","accountSid":"AC1","callSid":"CA1","tracks":["inbound"],"customParameters":{"caller":"+15550100"},"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}},"streamSid":"MZ1"}`)
	msg, err := ParseInbound(start)
	require.NoError(t, err)
	assert.Equal(t, EventStart, msg.Event)
	assert.Equal(t, "CA1", msg.Start.CallSid)
	assert.Equal(t, "+15550100", msg.Start.Caller())

	enc, err := msg.Start.MediaFormat.AudioEncoding()
	require.NoError(t, err)
	assert.Equal(t, audio.TwilioMulaw, enc)

	payload := base64.StdEncoding.EncodeToString([]byte{0xFF, 0x7F, 0x00})
	media, err := ParseInbound([]byte(`{"event":"media","streamSid":"MZ1","media":{"track":"inbound","chunk":"2","timestamp":"20","payload":"` + payload + `"}}`))
	require.NoError(t, err)
	chunk, err := media.Media.AudioChunk(enc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x7F, 0x00}, chunk.Payload)

	_, err = ParseInbound([]byte(`{"streamSid":"MZ1"}`))
	assert.Error(t, err)
	_, err = ParseInbound([]byte(`not json`))
	assert.Error(t, err)
}

func TestMediaPayloadRejectsBadBase64(t *testing.T) {
	m := &MediaPayload{Payload: "***"}
	_, err := m.AudioChunk(audio.TwilioMulaw)
	assert.ErrorIs(t, err, audio.ErrMalformedChunk)
}

func TestUnsupportedStreamEncoding(t *testing.T) {
	_, err := MediaFormat{Encoding: "audio/opus"}.AudioEncoding()
	assert.ErrorIs(t, err, audio.ErrMalformedChunk)
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []Outbound
	// onMark, when set, runs for every outbound mark.
	onMark func(name string)
}

func (r *recordingSender) Send(m Outbound) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	hook := r.onMark
	r.mu.Unlock()
	if m.Event == EventMark && hook != nil {
		go hook(m.Mark.Name)
	}
	return nil
}

func (r *recordingSender) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Event
	}
	return out
}

// 200 ms of 8 kHz PCM16.
func testClip() audio.Clip {
	return audio.Clip{PCM: make([]byte, 2*1600), SampleRate: StreamRate}
}

func TestStreamOutputPlay(t *testing.T) {
	sender := &recordingSender{}
	out := NewStreamOutput(sender, "MZ1", nil)
	sender.onMark = out.Acknowledge

	require.NoError(t, out.Play(context.Background(), testClip()))

	events := sender.events()
	require.Len(t, events, 11)
	for _, e := range events[:10] {
		assert.Equal(t, EventMedia, e)
	}
	assert.Equal(t, EventMark, events[10])

	raw, err := base64.StdEncoding.DecodeString(sender.msgs[0].Media.Payload)
	require.NoError(t, err)
	assert.Len(t, raw, frameBytes)
	assert.Equal(t, "MZ1", sender.msgs[0].StreamSid)
}

func TestStreamOutputEmptyClip(t *testing.T) {
	sender := &recordingSender{}
	out := NewStreamOutput(sender, "MZ1", nil)
	require.NoError(t, out.Play(context.Background(), audio.Clip{}))
	assert.Empty(t, sender.events())
}

func TestStreamOutputInterrupt(t *testing.T) {
	sender := &recordingSender{}
	out := NewStreamOutput(sender, "MZ1", nil)

	// Nothing playing: no clear is sent.
	require.NoError(t, out.Interrupt())
	require.NoError(t, out.Interrupt())
	assert.Empty(t, sender.events())

	done := make(chan error, 1)
	go func() { done <- out.Play(context.Background(), testClip()) }()

	require.Eventually(t, func() bool {
		ev := sender.events()
		return len(ev) > 0 && ev[len(ev)-1] == EventMark
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, out.Interrupt())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrInterrupted)
	case <-time.After(time.Second):
		t.Fatal("play did not return after interrupt")
	}

	ev := sender.events()
	assert.Equal(t, EventClear, ev[len(ev)-1])

	require.NoError(t, out.Interrupt())
	assert.Len(t, sender.events(), len(ev))
}

func TestStreamOutputCancelled(t *testing.T) {
	sender := &recordingSender{}
	out := NewStreamOutput(sender, "MZ1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, out.Play(ctx, testClip()), context.Canceled)
	assert.Empty(t, sender.events())
}

func TestStreamOutputClearsAfterCancelledPlay(t *testing.T) {
	sender := &recordingSender{}
	out := NewStreamOutput(sender, "MZ1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- out.Play(ctx, testClip()) }()

	require.Eventually(t, func() bool {
		ev := sender.events()
		return len(ev) > 0 && ev[len(ev)-1] == EventMark
	}, time.Second, 5*time.Millisecond)

	// The caller's context goes first; Twilio still holds the buffered media.
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("play did not return after cancel")
	}

	require.NoError(t, out.Interrupt())
	ev := sender.events()
	assert.Equal(t, EventClear, ev[len(ev)-1])

	require.NoError(t, out.Interrupt())
	assert.Len(t, sender.events(), len(ev))
}

func TestStreamOutputInterruptAfterPlaybackIsNoop(t *testing.T) {
	sender := &recordingSender{}
	out := NewStreamOutput(sender, "MZ1", nil)
	sender.onMark = out.Acknowledge

	require.NoError(t, out.Play(context.Background(), testClip()))
	n := len(sender.events())

	require.NoError(t, out.Interrupt())
	assert.Len(t, sender.events(), n)
}

func TestStreamOutputClosed(t *testing.T) {
	out := NewStreamOutput(&recordingSender{}, "MZ1", nil)
	out.Close()
	assert.ErrorIs(t, out.Play(context.Background(), testClip()), ErrInterrupted)
}

func TestAnswerTwiML(t *testing.T) {
	doc, err := AnswerTwiML(AnswerOptions{PublicHost: "https://calls.example.com/", Caller: "+15550100"})
	require.NoError(t, err)
	assert.Contains(t, doc, "<Say>"+DefaultGreeting+"</Say>")
	assert.Contains(t, doc, `url="wss://calls.example.com/twilio/stream"`)
	assert.Contains(t, doc, `name="caller"`)
	assert.Contains(t, doc, `value="+15550100"`)
	assert.NotContains(t, doc, "<Play")

	doc, err = AnswerTwiML(AnswerOptions{PublicHost: "calls.example.com", GreetingURL: "https://storage.example.com/greeting.wav"})
	require.NoError(t, err)
	assert.Contains(t, doc, "<Play>https://storage.example.com/greeting.wav</Play>")
	assert.NotContains(t, doc, "<Say")
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := fullURL
	for _, k := range keys {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignatureValidator(t *testing.T) {
	const token = "secret-token"
	fullURL := "https://calls.example.com/twilio/answer"
	form := url.Values{"CallSid": {"CA1"}, "From": {"+15550100"}, "To": {"+15550199"}}

	v := NewSignatureValidator(token)
	assert.True(t, v.Validate(fullURL, form, sign(token, fullURL, form)))
	assert.False(t, v.Validate(fullURL, form, sign("other", fullURL, form)))
	assert.False(t, v.Validate(fullURL, form, ""))

	form.Set("From", "+15550111")
	assert.False(t, v.Validate(fullURL, form, sign(token, fullURL, url.Values{"CallSid": {"CA1"}, "From": {"+15550100"}, "To": {"+15550199"}})))
}
