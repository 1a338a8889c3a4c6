// Package room's Hub is the WebSocket entry point and room registry: it
// authenticates connections, creates rooms on demand, and hands each
// connection off to its room's connect/dispatch methods, mirroring the
// teacher's session.Hub.
package room

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/verlyn13/dicee-sub002/internal/v1/auth"
	"github.com/verlyn13/dicee-sub002/internal/v1/bus"
	"github.com/verlyn13/dicee-sub002/internal/v1/instrumentation"
	"github.com/verlyn13/dicee-sub002/internal/v1/lobby"
	"github.com/verlyn13/dicee-sub002/internal/v1/metrics"
	"github.com/verlyn13/dicee-sub002/internal/v1/storage"
)

// TokenValidator authenticates a bearer/query token into claims. Both
// auth.Validator and auth.MockValidator satisfy this, the same interface
// shape internal/v1/ratelimit.TokenValidator uses.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// Hub is the central coordinator for all rooms in the process. It is safe
// for concurrent use; each Room handles its own internal synchronization.
type Hub struct {
	mu                 sync.Mutex
	rooms              map[Code]*Room
	pendingCleanups    map[Code]*time.Timer
	subscriptions      map[Code]context.CancelFunc
	cleanupGracePeriod time.Duration

	validator      TokenValidator
	busService     *bus.Service
	emitter        *instrumentation.Emitter
	notifier       *lobby.Notifier
	defaultCfg     Config
	aiPolicy       AIPolicy
	allowedOrigins []string
}

// NewHub builds a Hub. busService may be nil, in which case every room falls
// back to an in-memory storage facade and no lobby-inbound subscription is
// started (single-instance mode, the same degradation the teacher's Hub
// applies to its BusService).
func NewHub(validator TokenValidator, busService *bus.Service, emitter *instrumentation.Emitter, notifier *lobby.Notifier, defaultCfg Config, aiPolicy AIPolicy, allowedOrigins []string) *Hub {
	return &Hub{
		rooms:              make(map[Code]*Room),
		pendingCleanups:    make(map[Code]*time.Timer),
		subscriptions:      make(map[Code]context.CancelFunc),
		cleanupGracePeriod: 5 * time.Second,
		validator:          validator,
		busService:         busService,
		emitter:            emitter,
		notifier:           notifier,
		defaultCfg:         defaultCfg,
		aiPolicy:           aiPolicy,
		allowedOrigins:     allowedOrigins,
	}
}

var upgrader = websocket.Upgrader{
	WriteBufferPool: &sync.Pool{
		New: func() any { return make([]byte, 4096) },
	},
}

// ServeWs authenticates the caller and hands them off to their room, per
// spec section 6.4.
func (h *Hub) ServeWs(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		tokenString = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token not provided"})
		return
	}

	claims, err := h.validator.ValidateToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	upgrader.CheckOrigin = h.checkOrigin

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	code := Code(c.Param("code"))
	rm, err := h.getOrCreateRoom(code, claims.Subject)
	if err != nil {
		conn.Close()
		return
	}

	displayName := c.Query("displayName")
	if displayName == "" {
		displayName = resolveDisplayName(claims)
	}

	client := NewClient(conn, rm, UserID(claims.Subject), displayName, RolePending)

	ctx := instrumentation.WithUserID(
		instrumentation.WithRoomCode(context.Background(), string(code)),
		string(claims.Subject),
	)
	if err := rm.connect(ctx, client); err != nil {
		conn.Close()
		return
	}

	metrics.IncConnection()
	go client.writePump()
	go client.readPump()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}

func resolveDisplayName(claims *auth.CustomClaims) string {
	if claims.Name != "" {
		return claims.Name
	}
	if claims.Email != "" {
		if parts := strings.Split(claims.Email, "@"); len(parts) > 0 {
			return parts[0]
		}
	}
	return claims.Subject
}

// getOrCreateRoom returns the room for code, creating and loading it (with
// hostID as its owner) if this is the first connection to see it.
func (h *Hub) getOrCreateRoom(code Code, hostID string) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rm, ok := h.rooms[code]; ok {
		if timer, pending := h.pendingCleanups[code]; pending {
			timer.Stop()
			delete(h.pendingCleanups, code)
		}
		return rm, nil
	}

	facade := h.newFacade(code)
	rm := NewRoom(code, UserID(hostID), h.defaultCfg, facade, h.emitter, h.notifier, h.aiPolicy, h.removeRoom)
	if err := rm.Load(context.Background()); err != nil {
		return nil, err
	}

	h.rooms[code] = rm
	metrics.ActiveRooms.Inc()

	if h.busService != nil {
		subCtx, cancel := context.WithCancel(context.Background())
		h.subscriptions[code] = cancel
		// The lobby forwards invite accept/decline requests over this
		// channel since the invitee may not hold a socket to this room
		// yet (spec section 4.9: inbound from lobby is invite-targeting
		// requests only).
		h.busService.Subscribe(subCtx, string(code), nil, rm.handleLobbyMessage)
		go h.busService.SetAdd(context.Background(), bus.ActiveRoomsKey, string(code))
	}

	return rm, nil
}

func (h *Hub) newFacade(code Code) storage.Facade {
	redisClient := h.busService.Client()
	if redisClient == nil {
		return storage.NewMemoryFacade(h.emitter)
	}
	return storage.NewRedisFacade(redisClient, fmt.Sprintf("room:%s:state", code), h.emitter)
}

// removeRoom schedules a grace-period cleanup for an empty room, mirroring
// the teacher's hub.removeRoom: a quick refresh reconnect cancels it rather
// than losing the room's state to a race.
func (h *Hub) removeRoom(code Code) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.pendingCleanups[code]; ok {
		existing.Stop()
		delete(h.pendingCleanups, code)
	}

	timer := time.AfterFunc(h.cleanupGracePeriod, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if rm, ok := h.rooms[code]; ok && rm.isEmpty() {
			delete(h.rooms, code)
			delete(h.pendingCleanups, code)
			metrics.ActiveRooms.Dec()
			if cancel, ok := h.subscriptions[code]; ok {
				cancel()
				delete(h.subscriptions, code)
			}
			if h.busService != nil {
				go h.busService.SetRem(context.Background(), bus.ActiveRoomsKey, string(code))
			}
		} else {
			delete(h.pendingCleanups, code)
		}
	})
	h.pendingCleanups[code] = timer
}
