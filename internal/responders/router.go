package responders

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/callgate/internal/dialogue"
	"github.com/yoockh/callgate/internal/metrics"
	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/utils"
)

// Responder is one policy the router can dispatch to.
type Responder interface {
	Respond(ctx context.Context, req dialogue.Request) (dialogue.Result, error)
}

// Router implements dialogue.ResponderPort over the four concrete responders.
type Router struct {
	byID    map[dialogue.Responder]Responder
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

type RouterConfig struct {
	Classifier Responder
	LowRisk    Responder
	HighRisk   Responder
	Assistant  Responder

	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Router{
		byID: map[dialogue.Responder]Responder{
			dialogue.Classifier:            cfg.Classifier,
			dialogue.LowRiskAuthenticator:  cfg.LowRisk,
			dialogue.HighRiskAuthenticator: cfg.HighRisk,
			dialogue.Assistant:             cfg.Assistant,
		},
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
}

func (r *Router) Invoke(ctx context.Context, req dialogue.Request) (dialogue.Result, error) {
	impl := r.byID[req.Responder]
	if impl == nil {
		return dialogue.Result{}, fmt.Errorf("no responder registered for %s", req.Responder)
	}

	start := time.Now()
	res, err := impl.Respond(ctx, req)
	r.metrics.RecordResponder(req.Responder.String(), err)

	r.log.WithFields(logrus.Fields{
		"call_id":    req.CallID,
		"responder":  req.Responder.String(),
		"latency_ms": time.Since(start).Milliseconds(),
		"verified":   res.Effects.Verified,
	}).Debug("responder invoked")
	return res, err
}

// lookupCustomer returns nil without error when the caller has no account.
func lookupCustomer(ctx context.Context, d Directory, phone string) (*models.Customer, error) {
	if phone == "" {
		return nil, nil
	}
	c, err := d.FindByPhone(ctx, phone)
	if err != nil {
		if utils.CodeOf(err) == utils.CodeNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("customer lookup: %w", err)
	}
	return c, nil
}
