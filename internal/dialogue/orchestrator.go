package dialogue

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxHops       = 3
	DefaultFallbackReply = "Sorry, I didn't catch that. Could you please repeat it?"
)

// Turn is one line of the call transcript.
type Turn struct {
	Role string `json:"role"` // "caller" or "agent"
	Text string `json:"text"`
}

const (
	RoleCaller = "caller"
	RoleAgent  = "agent"
)

// Request is everything a responder may look at.
type Request struct {
	Responder  Responder
	CallID     string
	Caller     string
	Transcript string
	State      Snapshot
	History    []Turn
	Categories []string
}

// Effects are the state changes a responder asks for. The orchestrator only
// applies the effect the invoked responder is allowed to have.
type Effects struct {
	Classification string
	Verified       bool
}

type Result struct {
	Reply   string
	Effects Effects
}

// ResponderPort runs a named responder.
type ResponderPort interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

type Input struct {
	Transcript string
	Caller     string
	History    []Turn
}

// Outcome is the result of routing one transcript. An empty Reply means
// nothing should be spoken.
type Outcome struct {
	Reply    string
	Hops     []Responder
	Fallback bool
	State    Snapshot
}

type Options struct {
	Table         *RiskTable
	MaxHops       int
	FallbackReply string
	Logger        logrus.FieldLogger
}

// Orchestrator routes transcripts through the auth-gated responder chain.
type Orchestrator struct {
	port     ResponderPort
	table    *RiskTable
	maxHops  int
	fallback string
	log      logrus.FieldLogger
}

func NewOrchestrator(port ResponderPort, opts Options) *Orchestrator {
	if opts.Table == nil {
		opts.Table = DefaultRiskTable()
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	if strings.TrimSpace(opts.FallbackReply) == "" {
		opts.FallbackReply = DefaultFallbackReply
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		port:     port,
		table:    opts.Table,
		maxHops:  opts.MaxHops,
		fallback: opts.FallbackReply,
		log:      opts.Logger,
	}
}

func (o *Orchestrator) Table() *RiskTable { return o.table }

func (o *Orchestrator) FallbackReply() string { return o.fallback }

// Handle routes one transcript for a call. A blank transcript is a no-op.
// Responder failures and hop exhaustion yield the fallback reply with state
// left at whatever was last committed. The only error returned is the
// context's, when the call goes away mid-routing.
func (o *Orchestrator) Handle(ctx context.Context, st *CallAuthState, in Input) (Outcome, error) {
	transcript := strings.TrimSpace(in.Transcript)
	if transcript == "" {
		return Outcome{State: st.Snapshot()}, nil
	}

	st.turn.Lock()
	defer st.turn.Unlock()

	log := o.log.WithField("call_id", st.CallID())
	var hops []Responder

	for len(hops) < o.maxHops {
		snap := st.Snapshot()
		responder := Select(snap)
		hops = append(hops, responder)

		res, err := o.port.Invoke(ctx, Request{
			Responder:  responder,
			CallID:     st.CallID(),
			Caller:     in.Caller,
			Transcript: transcript,
			State:      snap,
			History:    in.History,
			Categories: o.table.Categories(),
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{Hops: hops, State: st.Snapshot()}, ctxErr
			}
			log.WithError(err).WithField("responder", responder.String()).Error("responder failed")
			return o.fallbackOutcome(hops, st), nil
		}

		changed := o.apply(log, st, responder, res.Effects)

		reply := strings.TrimSpace(res.Reply)
		if responder == Classifier && reply != "" {
			log.Debug("discarding classifier reply text")
			reply = ""
		}
		if reply != "" {
			return Outcome{Reply: reply, Hops: hops, State: st.Snapshot()}, nil
		}
		if !changed {
			log.WithField("responder", responder.String()).Debug("responder made no progress")
			return Outcome{Hops: hops, State: st.Snapshot()}, nil
		}
	}

	log.WithField("hops", len(hops)).Warn("responder chain exhausted without a reply")
	return o.fallbackOutcome(hops, st), nil
}

func (o *Orchestrator) fallbackOutcome(hops []Responder, st *CallAuthState) Outcome {
	return Outcome{Reply: o.fallback, Hops: hops, Fallback: true, State: st.Snapshot()}
}

// apply commits the effect the responder is allowed to have and drops the
// rest. It reports whether the state changed.
func (o *Orchestrator) apply(log logrus.FieldLogger, st *CallAuthState, r Responder, eff Effects) bool {
	log = log.WithField("responder", r.String())
	switch r {
	case Classifier:
		if eff.Verified {
			log.Warn("ignoring verification from classifier")
		}
		if !st.classify(eff.Classification, o.table) {
			return false
		}
		snap := st.Snapshot()
		log.WithFields(logrus.Fields{
			"classification": snap.Classification,
			"required":       snap.Required.String(),
		}).Info("call classified")
		return true

	case LowRiskAuthenticator, HighRiskAuthenticator:
		if eff.Classification != "" {
			log.Warn("ignoring classification from authenticator")
		}
		if !eff.Verified || !st.raise(r.grants()) {
			return false
		}
		log.WithField("current", r.grants().String()).Info("caller authenticated")
		return true

	default:
		if eff.Classification != "" || eff.Verified {
			log.Warn("ignoring state effects from assistant")
		}
		return false
	}
}
