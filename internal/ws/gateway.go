package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/reputable-ai/browserhub/internal/session"
)

// client is one observer connection. Writes go through a buffered send
// channel drained by writePump so the relay never writes the socket from
// two goroutines.
type client struct {
	conn     *websocket.Conn
	send     chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
		stop: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}

// enqueue hands a frame to the write pump, blocking until accepted or the
// connection is torn down. Blocking here is deliberate: backpressure
// propagates to the subscriber queue, which converts overflow into gap
// events instead of losing them silently.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.stop:
		return false
	}
}

func (c *client) close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// relay streams one session to one connection: backlog first, in
// sequence order, then the live feed until either side goes away. The
// backlog was copied out of the bus before this runs, so no bus lock is
// held during network delivery.
func relay(c *client, backlog []session.Event, sub *session.Subscriber) {
	defer sub.Close()

	for _, ev := range backlog {
		if !send(c, ev) {
			return
		}
	}
	for ev := range sub.Events() {
		if !send(c, ev) {
			return
		}
	}
}

func send(c *client, ev session.Event) bool {
	data, err := json.Marshal(frameFor(ev))
	if err != nil {
		log.Printf("ws frame marshal error: %v", err)
		return true
	}
	return c.enqueue(data)
}
