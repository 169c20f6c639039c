// Package socketio provides a notifier that emits job lifecycle events to a
// Socket.IO server, so dashboards can follow jobs live.
//
//	notifier "socketio" {
//	  url   = "http://localhost:3000/socket.io/"
//	  event = "job_event"
//	}
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/notify"
	"github.com/specialistvlad/dungeonjob/internal/registry"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultEvent is the Socket.IO event name used when none is configured.
const DefaultEvent = "job_event"

// DefaultConnectTimeout bounds the initial connection.
const DefaultConnectTimeout = 15 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the body of a `notifier "socketio"` block.
type Input struct {
	URL                string `hcl:"url"`
	Namespace          string `hcl:"namespace,optional"`
	Event              string `hcl:"event,optional"`
	ConnectTimeout     string `hcl:"connect_timeout,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}

// Notifier emits every event on a connected socket.
type Notifier struct {
	event      string
	emit       func(event string, payload any)
	disconnect func()
}

var (
	_ notify.Notifier = (*Notifier)(nil)
	_ notify.Closer   = (*Notifier)(nil)
)

// Notify implements notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, ev notify.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.emit(n.event, Payload(ev))
	return nil
}

// Close disconnects the socket.
func (n *Notifier) Close() error {
	n.disconnect()
	return nil
}

// Payload converts an event to the map that goes on the wire.
func Payload(ev notify.Event) map[string]any {
	p := map[string]any{
		"job_id": ev.JobID,
		"state":  ev.State,
		"time":   ev.Time.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range map[string]string{
		"stage":   ev.Stage,
		"node_id": ev.NodeID,
		"node_os": ev.NodeOS,
		"outcome": ev.Outcome,
		"reason":  ev.Reason,
	} {
		if v != "" {
			p[k] = v
		}
	}
	return p
}

// Connect dials the server and waits for the namespace connection.
func Connect(ctx context.Context, input *Input, timeout time.Duration) (*socket.Socket, error) {
	logger := ctxlog.FromContext(ctx).With("notifier", "socketio", "url", input.URL)

	parsedURL, err := url.Parse(input.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if input.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(input.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to event stream.", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	logger.Debug("Initiating connection...")
	io.Connect()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

// Register registers the backend with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNotifier("socketio", &registry.NotifierFactory{
		NewInput: func() any { return new(Input) },
		Create: func(ctx context.Context, input any) (notify.Notifier, error) {
			in := input.(*Input)
			timeout := DefaultConnectTimeout
			if in.ConnectTimeout != "" {
				d, err := time.ParseDuration(in.ConnectTimeout)
				if err != nil {
					return nil, fmt.Errorf("socketio notifier: invalid connect_timeout '%s': %w", in.ConnectTimeout, err)
				}
				timeout = d
			}
			event := in.Event
			if event == "" {
				event = DefaultEvent
			}
			io, err := Connect(ctx, in, timeout)
			if err != nil {
				return nil, err
			}
			return &Notifier{
				event:      event,
				emit:       func(ev string, payload any) { io.Emit(ev, payload) },
				disconnect: func() { io.Disconnect() },
			}, nil
		},
	})
}
