package notify

import (
	"context"

	"github.com/m-mizutani/osprey/pkg/model"
)

// Channel delivers an alert to one destination. Channels are invoked
// independently per alert; a failing channel never blocks the others.
type Channel interface {
	// Name identifies the channel in logs and routing policies
	Name() string

	// Send delivers the alert
	Send(ctx context.Context, alert *model.Alert) error
}
