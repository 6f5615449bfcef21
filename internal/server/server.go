package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/kbessonov/roomhub/internal/chat"
	"github.com/kbessonov/roomhub/internal/server/middleware"
	"github.com/kbessonov/roomhub/internal/store"
	"github.com/kbessonov/roomhub/pkg/chaterr"
	"github.com/kbessonov/roomhub/pkg/config"
	"github.com/kbessonov/roomhub/pkg/protocol"
	"github.com/kbessonov/roomhub/pkg/transport"
)

// Collaborators are the external services the server consumes through
// narrow interfaces.
type Collaborators struct {
	Messages store.MessageStore
	Users    store.UserDirectory
	Auth     store.AuthProvider
}

type eventBinding struct {
	filter  protocol.Filter
	handler func(data json.RawMessage, conn *chat.Connection) error
}

// App owns the listening socket, the authentication step and the
// event->handler bindings. It wires each accepted connection to a
// session and dispatches its frames.
type App struct {
	logger   *slog.Logger
	config   *config.Config
	registry *chat.Registry
	signer   *store.TokenSigner
	collab   Collaborators

	rooms       map[int64]*chat.Room
	defaultRoom *chat.Room
	events      map[string]eventBinding

	conns   sync.Map // uuid.UUID -> *chat.Connection
	wg      sync.WaitGroup
	http    *http.Server
	ctx     context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, collab Collaborators) (*App, error) {
	app := &App{
		logger:   logger,
		config:   cfg,
		registry: chat.NewRegistry(chat.DefaultSessionGrace, logger),
		signer:   store.NewTokenSigner(cfg.Server.Auth.TokenSalt),
		collab:   collab,
		rooms:    make(map[int64]*chat.Room),
		events:   make(map[string]eventBinding),
		ctx:      rootCtx,
	}

	deps := chat.Deps{
		Messages:   collab.Messages,
		Users:      collab.Users,
		Sessions:   app.registry,
		IsOperator: cfg.IsOperator,
		HistoryLen: cfg.History.Length,
		VisibleLen: cfg.History.VisibleLength,
		Logger:     logger,
	}
	for _, rc := range cfg.Rooms {
		room, err := chat.NewRoom(rc.ID, rc.Name, rc.Plugins, deps)
		if err != nil {
			return nil, err
		}
		app.rooms[rc.ID] = room
		if app.defaultRoom == nil {
			app.defaultRoom = room
		}
	}

	app.registerEvents()

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.Chain(
		http.HandlerFunc(app.upgradeHandler),
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(logger),
		middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret),
		middleware.NewConnectionLimiter(logger, app.countUserConnections, app.cycleUserConnection, cfg.Server.ConnectionLimit),
	))

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}
	return app, nil
}

// LoadHistories seeds every room's in-memory history from the store.
func (a *App) LoadHistories(ctx context.Context) error {
	for _, room := range a.rooms {
		if err := room.LoadHistory(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("failed to accept websocket connection", slog.Any("error", err))
		return
	}

	tc := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		connLogger,
	)
	conn := chat.NewConnection(tc, reqMeta.IP, reqMeta.Device, connLogger)
	a.conns.Store(tc.ID(), conn)

	// The authentication step: a valid session cookie recovers the
	// registered identity, anything else yields a fresh guest.
	sess, err := a.authenticate(r.Context(), reqMeta)
	if err != nil {
		connLogger.Error("authentication failed", slog.Any("error", err))
		a.conns.Delete(tc.ID())
		tc.Close(err)
		return
	}
	sess.AttachConnection(conn)

	tc.SetOnMessageHandler(func(ctx context.Context, connID uuid.UUID, frame []byte) {
		a.handleFrame(conn, frame)
	})
	tc.SetOnCloseHandler(func(id uuid.UUID, err error) {
		a.onConnectionClosed(conn)
	})

	if err := a.defaultRoom.AttachConnection(conn); err != nil {
		connLogger.Warn("default room rejected connection", slog.Any("error", err))
	}

	connLogger.Info("connection fully established", slog.String("identifier", sess.Identifier()))
	tc.Run()
	<-tc.Done()
}

// authenticate yields the session for a new connection: the registered
// identity when the upgrade carried a valid token, a fresh guest
// otherwise.
func (a *App) authenticate(ctx context.Context, reqMeta *middleware.RequestMetadata) (*chat.Session, error) {
	if reqMeta.UserID != 0 && a.collab.Users != nil {
		user, err := a.collab.Users.ByID(ctx, reqMeta.UserID)
		if err != nil {
			return nil, chaterr.Wrap(chaterr.Collaborator, "resolve authenticated user", err)
		}
		sess := a.registry.GetOrCreate(strings.ToLower(user.Username))
		sess.SetUser(user)
		return sess, nil
	}
	return a.registry.GetOrCreate(a.registry.NextGuestIdentifier()), nil
}

// handleFrame processes one inbound frame end to end. Every failure is
// reported back as an error frame; none terminates the connection.
func (a *App) handleFrame(conn *chat.Connection, frame []byte) {
	event, data, err := protocol.Decode(frame)
	if err != nil {
		a.reportError(conn, err)
		return
	}
	binding, ok := a.events[event]
	if !ok {
		a.reportError(conn, chaterr.Newf(chaterr.Protocol, "unknown event %q", event))
		return
	}
	if binding.filter != nil {
		if err := binding.filter.Check(data); err != nil {
			a.reportError(conn, err)
			return
		}
	}
	if err := binding.handler(data, conn); err != nil {
		a.reportError(conn, err)
	}
}

// reportError sends a validation failure back to the client.
// Collaborator failures are logged and reported generically.
func (a *App) reportError(conn *chat.Connection, err error) {
	if kind, ok := chaterr.KindOf(err); ok && kind != chaterr.Collaborator {
		conn.SendError(err)
		return
	}
	a.logger.Error("collaborator failure while handling event", slog.Any("error", err))
	conn.Send("error", "an internal error occurred")
}

func (a *App) onConnectionClosed(conn *chat.Connection) {
	a.conns.Delete(conn.ID())
	if room := conn.Room(); room != nil {
		room.OnConnectionClosed(conn)
	}
	sess := conn.Session()
	if sess == nil {
		return
	}
	sess.DetachConnection(conn)
	if sess.ConnectionCount() == 0 {
		a.registry.ScheduleEviction(sess)
	}
}

func (a *App) countUserConnections(userID int64) int {
	count := 0
	for _, sess := range a.registry.AllSessions() {
		if sess.User().ID == userID {
			count += sess.ConnectionCount()
		}
	}
	return count
}

func (a *App) cycleUserConnection(userID int64) {
	for _, sess := range a.registry.AllSessions() {
		if sess.User().ID != userID {
			continue
		}
		conns := sess.Connections()
		if len(conns) > 0 {
			// Attach order is oldest first.
			a.logger.Info("cycling connection: closing oldest", slog.Int64("userID", userID))
			conns[0].Close("connection cycled by new connection")
		}
		return
	}
}

// Shutdown drains the HTTP listener, closes every live connection and
// waits for their goroutines to finish.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	for _, sess := range a.registry.AllSessions() {
		for _, conn := range sess.Connections() {
			conn.Close("graceful shutdown")
		}
	}
	a.wg.Wait()
	a.logger.Info("server shut down gracefully")
	return nil
}
