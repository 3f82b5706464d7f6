// Package systemd reports recording state to the service manager when
// stereocap runs as a Type=notify unit.
package systemd

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/stereocap/internal/events"
	"github.com/smazurov/stereocap/internal/logging"
)

// Notifier forwards run lifecycle events to sd_notify. Without
// NOTIFY_SOCKET every notification is a no-op.
type Notifier struct {
	logger logging.Logger
	notify func(state string) (bool, error)
}

// NewNotifier creates a notifier that writes to $NOTIFY_SOCKET.
func NewNotifier(logger logging.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
}

// Attach subscribes to run events on bus and returns an unsubscribe func.
func (n *Notifier) Attach(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.RunStartedEvent) {
			n.send(daemon.SdNotifyReady + "\n" + fmt.Sprintf("MAINPID=%d", e.PID) + "\nSTATUS=Recording " + e.Output)
		}),
		bus.Subscribe(func(e events.PipelineProgressEvent) {
			n.send(fmt.Sprintf("STATUS=Recording, %d %s", e.Position, e.Unit))
		}),
		bus.Subscribe(func(e events.RunFinishedEvent) {
			n.send(daemon.SdNotifyStopping + "\n" + fmt.Sprintf("STATUS=Finished with exit code %d", e.ExitCode))
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify", "state", state)
	}
}
