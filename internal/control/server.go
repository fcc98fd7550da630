// ABOUTME: WebSocket control server for the playback engine
// ABOUTME: Maps protocol commands onto bridge calls and pushes state snapshots to clients
package control

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/whiteroom-audio/playback-go/internal/protocol"
	"github.com/whiteroom-audio/playback-go/internal/version"
	"github.com/whiteroom-audio/playback-go/pkg/bridge"
)

// Config holds control server configuration.
type Config struct {
	Port         int
	Name         string
	SnapshotRate time.Duration
}

// Server accepts control clients over WebSocket and applies their
// commands to one engine session through the bridge.
type Server struct {
	config   Config
	serverID string
	handle   bridge.Handle

	upgrader   websocket.Upgrader
	httpServer *http.Server

	// Bridge calls for one handle come from one goroutine at a time.
	dispatchMu sync.Mutex

	clientsMu sync.RWMutex
	clients   map[*client]struct{}

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type client struct {
	id   string
	name string
	conn *websocket.Conn

	writeMu sync.Mutex
}

// New creates a control server bound to an existing engine session.
func New(config Config, handle bridge.Handle) *Server {
	if config.SnapshotRate <= 0 {
		config.SnapshotRate = 250 * time.Millisecond
	}
	return &Server{
		config:   config,
		serverID: uuid.New().String(),
		handle:   handle,
		upgrader: websocket.Upgrader{
			// Trusted local networks only; non-browser clients carry no origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*client]struct{}),
		stopChan: make(chan struct{}),
	}
}

// ServerID returns the session identity advertised to clients.
func (s *Server) ServerID() string { return s.serverID }

// Start runs the HTTP listener and the snapshot broadcaster. It blocks
// until Stop is called or the listener fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.handleWebSocket)

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	logrus.WithFields(logrus.Fields{
		"server_id": s.serverID,
		"addr":      addr,
	}).Info("Control server listening")

	s.wg.Add(1)
	go s.broadcastLoop()

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
	case serverErr = <-errChan:
		logrus.WithError(serverErr).Error("Control server listener failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Control server shutdown reported error")
	}

	s.wg.Wait()
	logrus.Info("Control server stopped")

	if serverErr != nil {
		return fmt.Errorf("control server failed: %w", serverErr)
	}
	return nil
}

// Stop shuts the server down. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	c, err := s.handshake(conn)
	if err != nil {
		logrus.WithError(err).Warn("Client handshake failed")
		return
	}

	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
	}()

	logrus.WithFields(logrus.Fields{
		"client_id": c.id,
		"name":      c.name,
		"remote":    r.RemoteAddr,
	}).Info("Control client connected")

	s.readLoop(c)

	logrus.WithField("client_id", c.id).Info("Control client disconnected")
}

// handshake waits for client/hello and answers with server/hello.
func (s *Server) handshake(conn *websocket.Conn) (*client, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read hello: %w", err)
	}

	msg, err := protocol.Parse(data)
	if err != nil {
		return nil, err
	}
	if msg.Type != protocol.TypeClientHello {
		return nil, fmt.Errorf("expected %s, got %s", protocol.TypeClientHello, msg.Type)
	}

	var hello protocol.ClientHello
	if err := msg.Decode(&hello); err != nil {
		return nil, err
	}

	c := &client{id: hello.ClientID, name: hello.Name, conn: conn}
	if c.id == "" {
		c.id = uuid.New().String()
	}

	err = c.send(protocol.Message{
		Type: protocol.TypeServerHello,
		Payload: protocol.ServerHello{
			ServerID:      s.serverID,
			Name:          s.config.Name,
			Version:       protocol.ProtocolVersion,
			EngineVersion: version.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send server hello: %w", err)
	}
	return c, nil
}

func (s *Server) readLoop(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			logrus.WithError(err).WithField("client_id", c.id).
				Warn("Dropping unparseable message")
			continue
		}
		if msg.Type != protocol.TypeCommand {
			continue
		}

		var req protocol.CommandRequest
		if err := msg.Decode(&req); err != nil {
			logrus.WithError(err).WithField("client_id", c.id).
				Warn("Dropping malformed command")
			continue
		}

		result := s.Dispatch(req)
		if err := c.send(protocol.Message{Type: protocol.TypeResult, Payload: result}); err != nil {
			return
		}
	}
}

// Dispatch applies one command request through the bridge and builds the
// wire result.
func (s *Server) Dispatch(req protocol.CommandRequest) protocol.CommandResult {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	result := protocol.CommandResult{RequestID: req.RequestID, Action: req.Action}

	var err error
	switch req.Action {
	case protocol.ActionLoadSong:
		var id uint32
		id, err = bridge.LoadSong(s.handle, req.Source)
		result.InstanceID = id
	case protocol.ActionUnloadSong:
		err = bridge.UnloadSong(s.handle, req.InstanceID)
	case protocol.ActionPlay:
		err = bridge.Play(s.handle, req.InstanceID)
	case protocol.ActionPause:
		err = bridge.Pause(s.handle, req.InstanceID)
	case protocol.ActionStop:
		err = bridge.Stop(s.handle, req.InstanceID)
	case protocol.ActionSeek:
		err = bridge.Seek(s.handle, req.InstanceID, req.Value)
	case protocol.ActionSetTempo:
		err = bridge.SetTempo(s.handle, req.InstanceID, req.Value)
	case protocol.ActionSetVolume:
		err = bridge.SetVolume(s.handle, req.InstanceID, req.Value)
	case protocol.ActionSetMute:
		err = bridge.SetMute(s.handle, req.InstanceID, req.Flag)
	case protocol.ActionSetSolo:
		err = bridge.SetSolo(s.handle, req.InstanceID, req.Flag)
	case protocol.ActionSetLoop:
		err = bridge.SetLoop(s.handle, req.InstanceID, req.LoopStart, req.LoopEnd)
	case protocol.ActionMasterPlay:
		err = bridge.MasterPlay(s.handle)
	case protocol.ActionMasterPause:
		err = bridge.MasterPause(s.handle)
	case protocol.ActionMasterStop:
		err = bridge.MasterStop(s.handle)
	case protocol.ActionSetSyncMode:
		err = bridge.SetSyncMode(s.handle, req.Mode)
	case protocol.ActionSetMasterTempo:
		err = bridge.SetMasterTempo(s.handle, req.Value)
	case protocol.ActionSetMasterVolume:
		err = bridge.SetMasterVolume(s.handle, req.Value)
	case protocol.ActionAudioStart:
		err = bridge.AudioStart(s.handle)
	case protocol.ActionAudioStop:
		err = bridge.AudioStop(s.handle)
	case protocol.ActionGetState:
		// State is pushed by the broadcaster; get_state forces one reply.
		err = nil
	default:
		err = fmt.Errorf("%w: unknown action %q", bridge.ErrInvalidArgument, req.Action)
	}

	code := bridge.Code(err)
	result.Code = int32(code)
	result.Status = code.String()
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// broadcastLoop pushes the latest snapshot to every client on a fixed
// interval.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SnapshotRate)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			snap, err := bridge.StateSnapshot(s.handle)
			if err != nil {
				continue
			}
			msg := protocol.Message{Type: protocol.TypeState, Payload: snap}

			s.clientsMu.RLock()
			targets := make([]*client, 0, len(s.clients))
			for c := range s.clients {
				targets = append(targets, c)
			}
			s.clientsMu.RUnlock()

			for _, c := range targets {
				if err := c.send(msg); err != nil {
					logrus.WithField("client_id", c.id).
						Debug("Snapshot push failed, client likely gone")
				}
			}
		}
	}
}

func (c *client) send(msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}
