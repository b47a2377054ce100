package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/tabstash-sync/internal/settings"
	"github.com/tabstash-sync/internal/syncconfig"
)

// Message types accepted from clients
const (
	MsgSyncStart     = "syncStart"
	MsgAutoSyncStart = "autoSyncStart"
)

// MessageData is the payload of a sync message
type MessageData struct {
	Key      string              `json:"key,omitempty"`
	SyncType syncconfig.SyncType `json:"syncType,omitempty"`
}

// Message is a sync request sent by a client
type Message struct {
	MsgType string      `json:"msgType"`
	Data    MessageData `json:"data"`
}

// HandleMessage validates msg and starts the requested runs in the
// background
func (s *Server) HandleMessage(ctx context.Context, msg Message) error {
	syncType := msg.Data.SyncType

	switch msg.MsgType {
	case MsgSyncStart:
		if !syncType.Valid() {
			return fmt.Errorf("invalid sync type: %q", syncType)
		}
		if msg.Data.Key == "" {
			s.dispatch(func() { s.deps.Sync.SyncAll(context.Background(), syncType) })
			return nil
		}
		key := msg.Data.Key
		s.dispatch(func() { s.deps.Sync.SyncStart(context.Background(), key, syncType) })
		return nil

	case MsgAutoSyncStart:
		if syncType == "" {
			snapshot, err := s.deps.Settings.Get(ctx)
			if err != nil {
				return fmt.Errorf("failed to read settings: %w", err)
			}
			syncType = syncconfig.SyncType(snapshot.String(settings.KeyAutoSyncType))
			if !syncType.Valid() {
				syncType = syncconfig.AutoPushMerge
			}
		}
		if !syncType.Valid() {
			return fmt.Errorf("invalid sync type: %q", syncType)
		}
		// runs started here are recorded as automatic whatever mode was asked for
		syncType = syncType.Auto()
		s.dispatch(func() { s.deps.Sync.SyncAll(context.Background(), syncType) })
		return nil

	default:
		return fmt.Errorf("unknown message type: %q", msg.MsgType)
	}
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid message: %w", err))
		return
	}
	if err := s.HandleMessage(r.Context(), msg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleFrame dispatches a message received over the websocket
func (s *Server) handleFrame(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logrus.Warnf("Ignoring malformed websocket message: %v", err)
		return
	}
	if err := s.HandleMessage(context.Background(), msg); err != nil {
		logrus.Warnf("Ignoring websocket message: %v", err)
	}
}
