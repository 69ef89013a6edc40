package workers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/callgate/internal/calls"
	"github.com/yoockh/callgate/internal/dialogue"
	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/services"
	"github.com/yoockh/callgate/internal/utils"
)

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func sampleRecord() calls.UtteranceRecord {
	return calls.UtteranceRecord{
		CallID:        "CA1",
		Caller:        "+15550100",
		Seq:           3,
		Duration:      1500 * time.Millisecond,
		Audio:         []byte("RIFF-caller"),
		ReplyAudio:    []byte("RIFF-reply"),
		Transcript:    "what's my balance",
		STTStatus:     calls.STTDone,
		STTConfidence: 0.92,
		Reply:         "Your balance is 20 dollars.",
		Hops:          []string{"assistant"},
		Delivery:      calls.DeliveryPlayed,
		Auth: dialogue.Snapshot{
			CallID:         "CA1",
			Classification: "Check Balance",
			Classified:     true,
			Required:       dialogue.RiskLow,
			Current:        dialogue.AuthLow,
		},
		ProcessingTime: 800 * time.Millisecond,
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestStreamRecorderQueuesAndAnnounces(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, EventsChannel("CA1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	rec := &StreamRecorder{Redis: rdb, Events: &EventPublisher{Redis: rdb}}
	require.NoError(t, rec.RecordUtterance(ctx, sampleRecord()))

	entries, err := mr.Stream(DefaultAuditStream)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := map[string]any{}
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		values[entries[0].Values[i]] = entries[0].Values[i+1]
	}
	job, err := decodeAuditJob(redis.XMessage{ID: entries[0].ID, Values: values})
	require.NoError(t, err)
	assert.Equal(t, "CA1", job.CallID)
	assert.Equal(t, int64(3), job.Seq)
	assert.Equal(t, []byte("RIFF-caller"), job.Audio)
	assert.Equal(t, "Low", job.AuthLevel)
	assert.Equal(t, "Check Balance", job.Classification)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, EventUtterance, ev.Type)
	assert.Equal(t, int64(3), ev.Seq)
	assert.Equal(t, "what's my balance", ev.Data["transcript"])
}

func TestDecodeAuditJobRejectsGarbage(t *testing.T) {
	_, err := decodeAuditJob(redis.XMessage{Values: map[string]any{}})
	assert.Error(t, err)
	_, err = decodeAuditJob(redis.XMessage{Values: map[string]any{"job": "{"}})
	assert.Error(t, err)
	_, err = decodeAuditJob(redis.XMessage{Values: map[string]any{"job": `{"call_id":"CA1"}`}})
	assert.Error(t, err)
}

type fakeCalls struct {
	started []string
	ended   []models.CallMetadata
	call    *models.Call
}

func (f *fakeCalls) Start(_ context.Context, callID, streamSID, caller, customerID string) (*models.Call, error) {
	f.started = append(f.started, callID+"|"+caller+"|"+customerID)
	return &models.Call{CallID: callID}, nil
}

func (f *fakeCalls) Get(context.Context, string) (*models.Call, error) {
	if f.call == nil {
		return nil, utils.E(utils.CodeNotFound, "fake", "call not found", nil)
	}
	return f.call, nil
}

func (f *fakeCalls) End(_ context.Context, callID, reason string, md models.CallMetadata) (*models.Call, error) {
	f.ended = append(f.ended, md)
	return &models.Call{CallID: callID, EndReason: reason, Metadata: md}, nil
}

func (f *fakeCalls) ListRecent(context.Context, string, int64) ([]models.Call, error) {
	return nil, nil
}

type fakeUtterances struct{ recs []*models.Utterance }

func (f *fakeUtterances) Record(_ context.Context, u *models.Utterance) error {
	f.recs = append(f.recs, u)
	return nil
}

func (f *fakeUtterances) ListByCall(context.Context, string, int64) ([]models.Utterance, error) {
	return nil, nil
}

type fakeTranscripts struct {
	customerID string
	lines      []services.TranscriptLine
}

func (f *fakeTranscripts) Append(_ context.Context, callID, customerID string, seq int64, lines []services.TranscriptLine, _ []byte) ([]models.TranscriptEntry, error) {
	f.customerID = customerID
	f.lines = append(f.lines, lines...)
	return nil, nil
}

func (f *fakeTranscripts) ListByCall(context.Context, string, int) ([]models.TranscriptEntry, error) {
	return nil, nil
}

type fakeRecordings struct {
	services.RecordingService
	kinds []string
	fail  bool
}

func (f *fakeRecordings) Store(_ context.Context, callID string, seq int64, kind string, wav []byte, _ time.Duration) (*models.CallRecording, error) {
	if f.fail {
		return nil, errors.New("bucket unavailable")
	}
	f.kinds = append(f.kinds, kind)
	return &models.CallRecording{FilePath: callID + "/" + kind}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i + 1)}
	}
	return out, nil
}

func auditMessage(t *testing.T, rec calls.UtteranceRecord) redis.XMessage {
	b, err := json.Marshal(newAuditJob(rec))
	require.NoError(t, err)
	return redis.XMessage{ID: "1-0", Values: map[string]any{"job": string(b)}}
}

func TestAuditWorkerPersistsUtterance(t *testing.T) {
	utts := &fakeUtterances{}
	trs := &fakeTranscripts{}
	recs := &fakeRecordings{}
	p := &AuditWorkerPool{
		Calls:       &fakeCalls{call: &models.Call{CallID: "CA1", Metadata: models.CallMetadata{CustomerID: "cust-1"}}},
		Utterances:  utts,
		Transcripts: trs,
		Recordings:  recs,
		Embedder:    fakeEmbedder{},
		Logger:      quiet(),
	}

	require.NoError(t, p.handleMsg(context.Background(), auditMessage(t, sampleRecord())))

	require.Len(t, utts.recs, 1)
	u := utts.recs[0]
	assert.Equal(t, "CA1/caller", u.AudioPath)
	assert.Equal(t, "CA1/reply", u.ReplyPath)
	assert.Equal(t, int64(1500), u.DurationMS)
	assert.Equal(t, []string{"assistant"}, u.Responders)
	assert.Equal(t, "Low", u.AuthLevel)

	assert.Equal(t, "cust-1", trs.customerID)
	require.Len(t, trs.lines, 2)
	assert.Equal(t, models.SpeakerCaller, trs.lines[0].Speaker)
	assert.Equal(t, models.SpeakerAgent, trs.lines[1].Speaker)
	assert.Equal(t, []float32{2}, trs.lines[1].Embedding)
	assert.Equal(t, []string{models.RecordingCaller, models.RecordingReply}, recs.kinds)
}

func TestAuditWorkerSurvivesUploadFailure(t *testing.T) {
	utts := &fakeUtterances{}
	rec := sampleRecord()
	rec.Transcript, rec.Reply = "", ""
	p := &AuditWorkerPool{
		Calls:       &fakeCalls{},
		Utterances:  utts,
		Transcripts: &fakeTranscripts{},
		Recordings:  &fakeRecordings{fail: true},
		Logger:      quiet(),
	}

	require.NoError(t, p.handleMsg(context.Background(), auditMessage(t, rec)))
	require.Len(t, utts.recs, 1)
	assert.Empty(t, utts.recs[0].AudioPath)
}

func TestAuditWorkerPoolConsumesStream(t *testing.T) {
	_, rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	utts := &fakeUtterancesSync{done: make(chan *models.Utterance, 1)}
	p := &AuditWorkerPool{
		Redis:       rdb,
		NumWorkers:  1,
		Calls:       &fakeCalls{},
		Utterances:  utts,
		Transcripts: &fakeTranscripts{},
		Logger:      quiet(),
	}
	require.NoError(t, p.Start(ctx))

	rec := &StreamRecorder{Redis: rdb}
	require.NoError(t, rec.RecordUtterance(ctx, sampleRecord()))

	select {
	case u := <-utts.done:
		assert.Equal(t, "CA1", u.CallID)
		assert.Equal(t, int64(3), u.Seq)
	case <-time.After(5 * time.Second):
		t.Fatal("audit job was not consumed")
	}
}

type fakeUtterancesSync struct{ done chan *models.Utterance }

func (f *fakeUtterancesSync) Record(_ context.Context, u *models.Utterance) error {
	f.done <- u
	return nil
}

func (f *fakeUtterancesSync) ListByCall(context.Context, string, int64) ([]models.Utterance, error) {
	return nil, nil
}

type fakeCustomers struct {
	services.CustomerService
	customer *models.Customer
}

func (f *fakeCustomers) FindByPhone(context.Context, string) (*models.Customer, error) {
	if f.customer == nil {
		return nil, utils.E(utils.CodeNotFound, "fake", "customer not found", nil)
	}
	return f.customer, nil
}

func TestCallLifecycle(t *testing.T) {
	fc := &fakeCalls{}
	l := &CallLifecycle{
		Calls:     fc,
		Customers: &fakeCustomers{customer: &models.Customer{ID: "cust-1"}},
		Logger:    quiet(),
	}
	ctx := context.Background()

	require.NoError(t, l.CallStarted(ctx, calls.CallInfo{CallID: "CA1", Caller: "+15550100"}))
	assert.Equal(t, []string{"CA1|+15550100|cust-1"}, fc.started)

	require.NoError(t, l.CallEnded(ctx, calls.CallSummary{
		CallInfo:   calls.CallInfo{CallID: "CA1"},
		Reason:     models.EndReasonHangup,
		Auth:       sampleRecord().Auth,
		Utterances: 4,
	}))
	require.Len(t, fc.ended, 1)
	assert.Equal(t, "Check Balance", fc.ended[0].Classification)
	assert.Equal(t, "Low", fc.ended[0].CurrentAuth)
	assert.Equal(t, int64(4), fc.ended[0].Utterances)

	l.Customers = &fakeCustomers{}
	require.NoError(t, l.CallStarted(ctx, calls.CallInfo{CallID: "CA2", Caller: "+15550111"}))
	assert.Equal(t, "CA2|+15550111|", fc.started[1])
}
