package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// WebhookServer accepts a single long-lived websocket control connection
// and decodes inbound {"command": "sync-now"|"sync-all"|"stop"} frames,
// delivering the raw command string on Commands. The caller (wired at the
// CLI layer, which imports both notify and watch) converts each string
// into a watch.Command — kept untyped here to avoid a notify<->watch
// import cycle.
type WebhookServer struct {
	Commands chan<- string
	Logger   *slog.Logger

	mu     sync.Mutex
	server *http.Server
}

type commandFrame struct {
	Command string `json:"command"`
}

// ServeHTTP upgrades the connection and reads command frames until the
// client disconnects or the request context is cancelled.
func (w *WebhookServer) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		w.Logger.Error("webhook: accepting connection failed", slog.String("error", err.Error()))

		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	for {
		var frame commandFrame

		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			w.Logger.Debug("webhook: connection closed", slog.String("error", err.Error()))

			return
		}

		select {
		case w.Commands <- frame.Command:
		case <-ctx.Done():
			return
		}
	}
}

// NotifyViaWebhook pushes a one-shot JSON message to a configured
// outbound webhook URL, for the "authentication required" surfacing path.
type NotifyViaWebhook struct {
	URL string
}

func (n *NotifyViaWebhook) Notify(ctx context.Context, msg Message) error {
	conn, _, err := websocket.Dial(ctx, n.URL, nil)
	if err != nil {
		return fmt.Errorf("notify: dialing webhook: %w", err)
	}
	defer conn.CloseNow()

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("notify: writing webhook message: %w", err)
	}

	return conn.Close(websocket.StatusNormalClosure, "")
}
