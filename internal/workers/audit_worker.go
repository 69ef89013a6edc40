package workers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/callgate/internal/metrics"
	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/providers/llm"
	"github.com/yoockh/callgate/internal/services"
)

// AuditWorkerPool drains the audit stream: recordings go to object storage,
// the utterance record to Mongo, transcript lines (with embeddings) to
// Postgres, and a persisted event to the call's channel.
type AuditWorkerPool struct {
	Redis      redis.UniversalClient
	NumWorkers int

	Calls       services.CallService
	Utterances  services.UtteranceService
	Transcripts services.TranscriptService
	Recordings  services.RecordingService // optional
	Embedder    llm.Embedder              // optional
	Events      *EventPublisher
	Metrics     *metrics.Metrics

	Logger logrus.FieldLogger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *AuditWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Utterances == nil || p.Transcripts == nil || p.Calls == nil {
		return errors.New("AuditWorkerPool missing dependency: Redis/Calls/Utterances/Transcripts must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultAuditStream
	}
	if p.Group == "" {
		p.Group = "audit-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 4
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *AuditWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				err := p.handleMsg(ctx, msg)
				p.Metrics.RecordAuditJob(err)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func decodeAuditJob(msg redis.XMessage) (auditJob, error) {
	var job auditJob
	raw, _ := msg.Values["job"].(string)
	if raw == "" {
		return job, errors.New("audit message without job payload")
	}
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return job, err
	}
	if job.CallID == "" || job.Seq <= 0 {
		return job, errors.New("audit job missing call_id or seq")
	}
	return job, nil
}

func (p *AuditWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) error {
	job, err := decodeAuditJob(msg)
	if err != nil {
		p.Logger.WithError(err).WithField("redis_id", msg.ID).Warn("skipping malformed audit job")
		return err
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id": msg.ID,
		"call_id":  job.CallID,
		"seq":      job.Seq,
	})

	utt := &models.Utterance{
		CallID:           job.CallID,
		Seq:              job.Seq,
		DurationMS:       job.DurationMS,
		Transcript:       job.Transcript,
		STTStatus:        job.STTStatus,
		STTConfidence:    job.STTConfidence,
		Reply:            job.Reply,
		Responders:       job.Hops,
		Fallback:         job.Fallback,
		Delivery:         job.Delivery,
		Classification:   job.Classification,
		AuthLevel:        job.AuthLevel,
		ProcessingTimeMS: job.ProcessingTimeMS,
		Timestamp:        job.Timestamp,
	}

	// Recordings
	if p.Recordings != nil {
		if len(job.Audio) > 0 {
			r, err := p.Recordings.Store(ctx, job.CallID, job.Seq, models.RecordingCaller, job.Audio, time.Duration(job.DurationMS)*time.Millisecond)
			if err != nil {
				log.WithError(err).Warn("caller recording upload failed")
			} else {
				utt.AudioPath = r.FilePath
			}
		}
		if len(job.ReplyAudio) > 0 {
			r, err := p.Recordings.Store(ctx, job.CallID, job.Seq, models.RecordingReply, job.ReplyAudio, 0)
			if err != nil {
				log.WithError(err).Warn("reply recording upload failed")
			} else {
				utt.ReplyPath = r.FilePath
			}
		}
	}

	// Mongo audit
	if err := p.Utterances.Record(ctx, utt); err != nil {
		log.WithError(err).Error("utterance record failed")
		return err
	}

	// Postgres transcript
	var lines []services.TranscriptLine
	if job.Transcript != "" {
		lines = append(lines, services.TranscriptLine{Speaker: models.SpeakerCaller, Content: job.Transcript})
	}
	if job.Reply != "" {
		lines = append(lines, services.TranscriptLine{Speaker: models.SpeakerAgent, Content: job.Reply})
	}
	if len(lines) > 0 {
		p.embed(ctx, log, lines)

		customerID := ""
		if call, err := p.Calls.Get(ctx, job.CallID); err == nil {
			customerID = call.Metadata.CustomerID
		}
		md, _ := json.Marshal(map[string]any{
			"responders": job.Hops,
			"fallback":   job.Fallback,
			"auth_level": job.AuthLevel,
		})
		if _, err := p.Transcripts.Append(ctx, job.CallID, customerID, job.Seq, lines, md); err != nil {
			log.WithError(err).Error("transcript append failed")
			return err
		}
	}

	_ = p.Events.Publish(ctx, Event{
		Type:   EventUtterancePersisted,
		CallID: job.CallID,
		Seq:    job.Seq,
		Data: map[string]any{
			"audio_path": utt.AudioPath,
			"reply_path": utt.ReplyPath,
		},
	})
	return nil
}

// embed attaches embeddings to lines. Failures only cost similarity search.
func (p *AuditWorkerPool) embed(ctx context.Context, log logrus.FieldLogger, lines []services.TranscriptLine) {
	if p.Embedder == nil {
		return
	}
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Content
	}
	vecs, err := p.Embedder.Embed(ctx, texts)
	if err != nil || len(vecs) != len(lines) {
		log.WithError(err).Warn("transcript embedding failed")
		return
	}
	for i := range lines {
		lines[i].Embedding = vecs[i]
	}
}
