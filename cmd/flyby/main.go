package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"voxelstream.dev/internal/observerproto"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/observer/ws", "observer ws url")
		shape    = flag.String("path", "circle", "flight path: circle or line")
		radius   = flag.Float64("radius", 96, "circle radius / line half-length in world units")
		altitude = flag.Float64("altitude", 40, "flight altitude")
		speed    = flag.Float64("speed", 24, "world units per second")
		hz       = flag.Int("hz", 10, "position updates per second")
		frames   = flag.Int("frames", 0, "stop after this many frames (0 = run until interrupted)")
		digEvery = flag.Int("dig_every", 0, "remove the block below the observer every N frames (0 = never)")
		sorted   = flag.Bool("sorted", true, "ask for added chunks nearest first")
		purge    = flag.Bool("purge", true, "ask the server to evict far chunks")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[flyby] ", log.LstdFlags|log.Lmicroseconds)
	p, err := newPath(*shape, float32(*radius), float32(*altitude))
	if err != nil {
		logger.Fatalf("path: %v", err)
	}
	if *hz <= 0 {
		*hz = 10
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Sorted:          *sorted,
		Purge:           *purge,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	dt := time.Second / time.Duration(*hz)
	tick := time.NewTicker(dt)
	defer tick.Stop()

	var (
		seq      uint64
		traveled float32
		stats    flightStats
	)
	for *frames == 0 || int(seq) < *frames {
		select {
		case <-stop:
			logger.Printf("interrupted: %s", stats)
			return
		case <-tick.C:
		}
		seq++
		traveled += float32(*speed) * float32(dt.Seconds())
		pos := p.at(traveled)

		if err := conn.WriteJSON(observerproto.PositionMsg{
			Type:            observerproto.TypePosition,
			ProtocolVersion: observerproto.Version,
			Seq:             seq,
			Pos:             [3]float32(pos),
		}); err != nil {
			logger.Fatalf("send POSITION: %v", err)
		}
		if !readReply(conn, logger, &stats) {
			return
		}

		if *digEvery > 0 && int(seq)%*digEvery == 0 {
			edit := observerproto.EditMsg{
				Type:            observerproto.TypeEdit,
				ProtocolVersion: observerproto.Version,
				Seq:             seq,
				Action:          observerproto.ActionRemove,
				Origin:          [3]float32(pos),
				Dir:             [3]float32{0, -1, 0},
				MaxDist:         float32(*altitude) + 8,
			}
			if err := conn.WriteJSON(edit); err != nil {
				logger.Fatalf("send EDIT: %v", err)
			}
			if !readReply(conn, logger, &stats) {
				return
			}
		}
	}
	logger.Printf("done: %s", stats)
}

// readReply reads one server message and folds it into stats. It returns
// false when the connection is unusable.
func readReply(conn *websocket.Conn, logger *log.Logger, stats *flightStats) bool {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		logger.Printf("read: %v", err)
		return false
	}
	base, err := observerproto.DecodeBase(msg)
	if err != nil {
		return true
	}
	switch base.Type {
	case observerproto.TypeRegion:
		var rm observerproto.RegionMsg
		if err := json.Unmarshal(msg, &rm); err != nil {
			return true
		}
		stats.addRegion(rm)
		if len(rm.Added) > 0 || len(rm.Removed) > 0 || rm.Purged > 0 {
			logger.Printf("seq=%d +%d -%d purged=%d active=%d resident=%d loading=%d",
				rm.Seq, len(rm.Added), len(rm.Removed), rm.Purged, rm.Active, rm.Resident, rm.Loading)
		}
	case observerproto.TypeEdited:
		var em observerproto.EditedMsg
		if err := json.Unmarshal(msg, &em); err != nil {
			return true
		}
		if em.Hit {
			stats.Dug++
			logger.Printf("seq=%d dug %v", em.Seq, em.Cell)
		}
	case observerproto.TypeError:
		var e observerproto.ErrorMsg
		_ = json.Unmarshal(msg, &e)
		logger.Printf("server error %s: %s", e.Code, e.Message)
		return e.Code == observerproto.ErrBadRequest
	}
	return true
}
