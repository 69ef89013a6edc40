package workers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/callgate/internal/calls"
	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/services"
	"github.com/yoockh/callgate/internal/utils"
)

// CallLifecycle persists call start and end and announces them on the
// call's event channel.
type CallLifecycle struct {
	Calls     services.CallService
	Customers services.CustomerService // optional
	Events    *EventPublisher
	Logger    logrus.FieldLogger
}

func (l *CallLifecycle) CallStarted(ctx context.Context, info calls.CallInfo) error {
	customerID := ""
	if l.Customers != nil && info.Caller != "" {
		c, err := l.Customers.FindByPhone(ctx, info.Caller)
		switch {
		case err == nil:
			customerID = c.ID
		case utils.IsCode(err, utils.CodeNotFound):
		default:
			l.logger().WithError(err).WithField("call_id", info.CallID).Warn("customer lookup failed")
		}
	}

	if _, err := l.Calls.Start(ctx, info.CallID, info.StreamSID, info.Caller, customerID); err != nil {
		return err
	}
	return l.Events.Publish(ctx, Event{
		Type:   EventCallStarted,
		CallID: info.CallID,
		Data:   map[string]any{"caller": info.Caller, "customer_id": customerID},
	})
}

func (l *CallLifecycle) CallEnded(ctx context.Context, s calls.CallSummary) error {
	md := models.CallMetadata{
		Classification: s.Auth.Classification,
		RequiredAuth:   s.Auth.Required.String(),
		CurrentAuth:    s.Auth.Current.String(),
		Utterances:     s.Utterances,
		DroppedChunks:  s.Dropped,
	}
	if _, err := l.Calls.End(ctx, s.CallID, s.Reason, md); err != nil {
		return err
	}
	return l.Events.Publish(ctx, Event{
		Type:   EventCallEnded,
		CallID: s.CallID,
		Data: map[string]any{
			"reason":         s.Reason,
			"classification": md.Classification,
			"auth_level":     md.CurrentAuth,
		},
	})
}

func (l *CallLifecycle) logger() logrus.FieldLogger {
	if l.Logger == nil {
		return logrus.StandardLogger()
	}
	return l.Logger
}
