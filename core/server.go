// Package core is the transport layer: it upgrades websockets, decodes
// event envelopes and hands them to the room logic.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/mafiadial/mafia-night-server/logic"
	"github.com/mafiadial/mafia-night-server/model"
	"github.com/mafiadial/mafia-night-server/service"
	"github.com/mafiadial/mafia-night-server/util"
)

const sessionTokenTTL = 24 * time.Hour

type Server struct {
	config   model.Config
	upgrader websocket.Upgrader
	hub      *Hub
	manager  *logic.Manager
	store    service.Store
}

func NewServer(config model.Config) (*Server, error) {
	store, err := service.OpenSQLite(config.Storage.Path)
	if err != nil {
		return nil, err
	}
	hub := NewHub()
	server := &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		hub:     hub,
		manager: logic.NewManager(&config, service.NewClock(), store, hub),
		store:   store,
	}
	return server, nil
}

// Run serves until the process receives a termination signal, then
// shuts down gracefully.
func (s *Server) Run() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		c.Header("Server", "mafia-night-server/"+Version.Version+" "+runtime.Version()+" ("+runtime.GOOS+"; "+runtime.GOARCH+")")

		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.GET("/ws", func(c *gin.Context) {
		s.handleConnections(c.Writer, c.Request)
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": s.manager.RoomCount(), "version": Version})
	})

	addr := s.config.Server.Host + ":" + strconv.Itoa(s.config.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server started", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		s.manager.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if closeErr := s.store.Close(); err == nil {
			err = closeErr
		}
		return err
	})
	return g.Wait()
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade client", "error", err)
		return
	}
	client := newClient(ws)

	if token := r.URL.Query().Get("token"); token != "" && s.config.Server.Authentication.Enable {
		secret := s.config.Server.Authentication.Secret
		if code, playerID, ok := util.ParseSessionToken(secret, token); ok {
			if room, err := s.manager.Rejoin(code, playerID); err == nil {
				s.hub.Bind(client, code, playerID)
				client.send(model.EventJoined, model.JoinedNotice{Code: code, PlayerID: playerID})
				client.send(model.EventRoomUpdate, room.Snapshot())
			}
		} else if util.IsValidSpectatorToken(secret, token) {
			client.spectatorOK = true
		}
	}

	go s.readLoop(client)
}

func (s *Server) readLoop(c *Client) {
	defer func() {
		c.close()
		if code, playerID, bound := s.hub.Drop(c); bound {
			s.manager.HandleDisconnect(code, playerID)
		}
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			slog.Debug("client read ended", "player", c.playerID, "error", err)
			return
		}
		var env model.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.send(model.EventToast, model.Toast{Type: "error", Message: "malformed message"})
			continue
		}
		if err := s.dispatch(c, env); err != nil {
			c.send(model.EventToast, model.Toast{Type: "error", Message: err.Error()})
		}
	}
}

func (s *Server) dispatch(c *Client, env model.Envelope) error {
	switch env.Event {
	case model.EventRoomCreate:
		var req model.RoomCreateRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return logic.ErrInvalidRequest
		}
		room, player, err := s.manager.CreateRoom(req.Name)
		if err != nil {
			return err
		}
		s.joined(c, room, player)
		return nil

	case model.EventRoomJoin:
		var req model.RoomJoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return logic.ErrInvalidRequest
		}
		room, player, err := s.manager.JoinRoom(req.Code, req.Name)
		if err != nil {
			return err
		}
		s.joined(c, room, player)
		return nil

	case model.EventHostStart:
		room, err := s.roomFor(c, env.Data)
		if err != nil {
			return err
		}
		return room.Start(c.playerID)

	case model.EventNightAction:
		var req model.NightActionRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return logic.ErrInvalidRequest
		}
		room, err := s.boundRoom(c, req.Code)
		if err != nil {
			return err
		}
		return room.SubmitNightAction(c.playerID, req.Type, req.TargetID)

	case model.EventNightFinalize:
		room, err := s.roomFor(c, env.Data)
		if err != nil {
			return err
		}
		return room.FinalizeNight(c.playerID)

	case model.EventDayAccuse:
		var req model.DayAccuseRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return logic.ErrInvalidRequest
		}
		room, err := s.boundRoom(c, req.Code)
		if err != nil {
			return err
		}
		return room.Accuse(c.playerID, req.TargetID)

	case model.EventDayVote:
		var req model.DayVoteRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return logic.ErrInvalidRequest
		}
		room, err := s.boundRoom(c, req.Code)
		if err != nil {
			return err
		}
		return room.SubmitDayVote(c.playerID, req.NomineeID, req.Value)

	case model.EventDayFinalize:
		room, err := s.roomFor(c, env.Data)
		if err != nil {
			return err
		}
		return room.FinalizeDay(c.playerID)

	case model.EventHostSettings:
		var req model.SettingsUpdateRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return logic.ErrInvalidRequest
		}
		room, err := s.boundRoom(c, req.Code)
		if err != nil {
			return err
		}
		patch, err := decodeSettingsPatch(req.Patch)
		if err != nil {
			return err
		}
		return room.UpdateSettings(c.playerID, patch)

	case model.EventHostForcePhase:
		room, err := s.roomFor(c, env.Data)
		if err != nil {
			return err
		}
		return room.ForcePhase(c.playerID)

	case model.EventGameReady:
		room, err := s.roomFor(c, env.Data)
		if err != nil {
			return err
		}
		return room.Ready(c.playerID)

	case model.EventGameToLobby:
		room, err := s.roomFor(c, env.Data)
		if err != nil {
			return err
		}
		return room.ToLobby(c.playerID)

	case model.EventChatSend:
		var req model.ChatSendRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return logic.ErrInvalidRequest
		}
		room, err := s.boundRoom(c, req.Code)
		if err != nil {
			return err
		}
		return room.SendChat(c.playerID, req.Text, req.Channel)

	case model.EventNameUpdate:
		var req model.NameUpdateRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return logic.ErrInvalidRequest
		}
		room, err := s.boundRoom(c, "")
		if err != nil {
			return err
		}
		return room.UpdateName(c.playerID, req.Name)

	case model.EventPublicSubscribe:
		var req model.RoomRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return logic.ErrInvalidRequest
		}
		if s.config.Server.Authentication.Enable && !c.spectatorOK {
			return logic.ErrNotEligible
		}
		room, err := s.manager.Get(req.Code)
		if err != nil {
			return err
		}
		if !room.SpectatorsAllowed() {
			return logic.ErrNotEligible
		}
		s.hub.SubscribePublic(c, req.Code)
		c.send(model.EventRoomUpdatePublic, room.Snapshot())
		return nil
	}
	slog.Warn("unknown event", "event", env.Event)
	return logic.ErrInvalidRequest
}

func (s *Server) joined(c *Client, room *logic.Room, player *model.Player) {
	s.hub.Bind(c, room.Code, player.ID)
	notice := model.JoinedNotice{Code: room.Code, PlayerID: player.ID, Name: player.Name}
	if s.config.Server.Authentication.Enable {
		token, err := util.IssueSessionToken(s.config.Server.Authentication.Secret, room.Code, player.ID, sessionTokenTTL)
		if err != nil {
			slog.Warn("failed to issue session token", "room", room.Code, "error", err)
		} else {
			notice.Token = token
		}
	}
	c.send(model.EventJoined, notice)
	c.send(model.EventRoomUpdate, room.Snapshot())
}

// roomFor resolves a plain room request against the client's binding.
func (s *Server) roomFor(c *Client, data json.RawMessage) (*logic.Room, error) {
	var req model.RoomRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, logic.ErrInvalidRequest
		}
	}
	return s.boundRoom(c, req.Code)
}

// boundRoom returns the client's room, insisting any explicit code in
// the request matches the binding.
func (s *Server) boundRoom(c *Client, code string) (*logic.Room, error) {
	if c.playerID == "" || c.roomCode == "" {
		return nil, logic.ErrUnknownPlayer
	}
	if code != "" && code != c.roomCode {
		return nil, logic.ErrRoomNotFound
	}
	return s.manager.Get(c.roomCode)
}

// decodeSettingsPatch decodes strictly so typos in field names are
// rejected instead of silently ignored.
func decodeSettingsPatch(raw json.RawMessage) (model.SettingsPatch, error) {
	var patch model.SettingsPatch
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		return model.SettingsPatch{}, model.ErrInvalidPatch
	}
	return patch, nil
}
