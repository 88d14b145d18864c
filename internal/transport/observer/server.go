package observer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"voxelstream.dev/internal/observerproto"
	"voxelstream.dev/internal/terrain/geom"
	"voxelstream.dev/internal/terrain/region"
	"voxelstream.dev/internal/terrain/store"
)

const defaultReach = 64

type Config struct {
	Seed          int64
	TerrainHeight int
	// AllowRemote accepts connections from non-loopback addresses.
	AllowRemote bool
}

// Server streams active-region changes to a single observer. The session
// goroutine is the only caller of the store's per-frame update.
type Server struct {
	store *store.Store
	cfg   Config
	log   *log.Logger

	upgrader websocket.Upgrader
	busy     atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn
	sid  string
}

func NewServer(st *store.Store, cfg Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		store: st,
		cfg:   cfg,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Session returns the id of the connected observer, if any.
func (s *Server) Session() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid, s.conn != nil
}

// Close disconnects the current observer.
func (s *Server) Close() {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c != nil {
		_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
		_ = c.Close()
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.cfg.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		size := geom.ChunkSize()
		rg := s.store.Region()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldParams: observerproto.WorldParams{
				ChunkSize:       [3]int{size.X, size.Y, size.Z},
				Seed:            s.cfg.Seed,
				TerrainHeight:   s.cfg.TerrainHeight,
				Extent:          rg.Extent(),
				MaxActiveChunks: rg.MaxActiveChunks(),
			},
			Busy: s.busy.Load(),
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.cfg.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if !s.busy.CAS(false, true) {
			writeJSON(conn, observerproto.NewError(observerproto.ErrBusy, "another observer is connected"))
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "busy"), time.Now().Add(time.Second))
			return
		}
		defer s.busy.Store(false)

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			writeJSON(conn, observerproto.NewError(observerproto.ErrBadRequest, "expected SUBSCRIBE "+observerproto.Version))
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := uuid.NewString()
		s.mu.Lock()
		s.conn, s.sid = conn, sid
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			s.conn, s.sid = nil, ""
			s.mu.Unlock()
		}()
		s.log.Printf("observer %s connected from %s sorted=%v purge=%v", sid, r.RemoteAddr, sub.Sorted, sub.Purge)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, 64)
		writeErr := make(chan error, 1)
		go writeLoop(ctx, cancel, conn, out, writeErr)

		sess := &session{srv: s, sub: sub, out: out, ctx: ctx}
		frames := 0
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if !sess.handle(msg) {
				break
			}
			frames++
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		s.log.Printf("observer %s disconnected after %d messages", sid, frames)

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

type frameWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// writeLoop drains out onto conn until ctx ends. A failed write cancels the
// session and closes conn, so senders and the read loop stop too.
func writeLoop(ctx context.Context, cancel context.CancelFunc, conn frameWriter, out <-chan []byte, writeErr chan<- error) {
	for {
		select {
		case <-ctx.Done():
			writeErr <- ctx.Err()
			return
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				cancel()
				_ = conn.Close()
				writeErr <- err
				return
			}
		}
	}
}

type session struct {
	srv *Server
	sub observerproto.SubscribeMsg
	out chan<- []byte
	ctx context.Context
}

// handle processes one client message. It returns false once the
// connection should be dropped.
func (ss *session) handle(msg []byte) bool {
	base, err := observerproto.DecodeBase(msg)
	if err != nil {
		return ss.fail(observerproto.ErrBadRequest, "bad json")
	}
	if base.ProtocolVersion != observerproto.Version {
		return ss.fail(observerproto.ErrBadRequest, "protocol_version mismatch")
	}

	switch base.Type {
	case observerproto.TypeSubscribe:
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			return ss.fail(observerproto.ErrBadRequest, "bad SUBSCRIBE")
		}
		ss.sub = sub
		return true
	case observerproto.TypePosition:
		var pm observerproto.PositionMsg
		if err := json.Unmarshal(msg, &pm); err != nil {
			return ss.fail(observerproto.ErrBadRequest, "bad POSITION")
		}
		return ss.position(pm)
	case observerproto.TypeEdit:
		var em observerproto.EditMsg
		if err := json.Unmarshal(msg, &em); err != nil {
			return ss.fail(observerproto.ErrBadRequest, "bad EDIT")
		}
		return ss.edit(em)
	default:
		return ss.fail(observerproto.ErrBadRequest, "unknown type "+base.Type)
	}
}

func (ss *session) position(pm observerproto.PositionMsg) bool {
	st := ss.srv.store
	observer := mgl32.Vec3(pm.Pos)
	diff := st.Update(observer)

	msg := observerproto.RegionMsg{
		Type:            observerproto.TypeRegion,
		ProtocolVersion: observerproto.Version,
		Seq:             pm.Seq,
	}
	added := diff.Added
	if ss.sub.Sorted {
		added = region.ChunksSortedByDistance(observer, added)
	}
	msg.Added = minPs(added)
	msg.Removed = minPs(diff.Removed)

	if ss.sub.Purge {
		n, err := st.Purge(observer)
		if err != nil {
			ss.srv.log.Printf("purge: %v", err)
			return ss.fail(observerproto.ErrInternal, "purge failed")
		}
		msg.Purged = n
	}

	info := st.Info()
	msg.Active, msg.Resident, msg.Loading = info.Active, info.Resident, info.Loading
	return ss.send(msg)
}

func (ss *session) edit(em observerproto.EditMsg) bool {
	dir := mgl32.Vec3(em.Dir)
	if dir.Len() == 0 {
		return ss.fail(observerproto.ErrBadRequest, "zero direction")
	}
	reach := em.MaxDist
	if reach <= 0 {
		reach = defaultReach
	}
	r := geom.NewRay(mgl32.Vec3(em.Origin), dir)

	var (
		h   store.Hit
		ok  bool
		err error
	)
	switch em.Action {
	case observerproto.ActionPlace:
		h, ok, err = ss.srv.store.PlaceBlock(r, reach)
	case observerproto.ActionRemove:
		h, ok, err = ss.srv.store.RemoveBlock(r, reach)
	default:
		return ss.fail(observerproto.ErrBadRequest, "unknown action "+em.Action)
	}
	if errors.Is(err, store.ErrClosed) {
		return ss.fail(observerproto.ErrClosed, "store closed")
	}
	if err != nil {
		ss.srv.log.Printf("edit %s: %v", em.Action, err)
		return ss.fail(observerproto.ErrInternal, "edit failed")
	}

	msg := observerproto.EditedMsg{
		Type:            observerproto.TypeEdited,
		ProtocolVersion: observerproto.Version,
		Seq:             em.Seq,
		Hit:             ok,
	}
	if ok {
		c := h.Cell
		if em.Action == observerproto.ActionPlace {
			c = h.Prev
		}
		msg.Cell = [3]int{c.X, c.Y, c.Z}
	}
	return ss.send(msg)
}

// fail reports an error to the client. Bad requests keep the session open.
func (ss *session) fail(code, text string) bool {
	if !ss.send(observerproto.NewError(code, text)) {
		return false
	}
	return code == observerproto.ErrBadRequest
}

func (ss *session) send(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case ss.out <- b:
		return true
	case <-ss.ctx.Done():
		return false
	}
}

func minPs(cs []region.Chunk) [][3]int {
	if len(cs) == 0 {
		return nil
	}
	out := make([][3]int, len(cs))
	for i, c := range cs {
		p := c.MinP()
		out[i] = [3]int{p.X, p.Y, p.Z}
	}
	return out
}

func writeJSON(conn *websocket.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
