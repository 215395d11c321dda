package cmdport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jvconnected/camera-engine/internal/health"
	"github.com/jvconnected/camera-engine/internal/logging"
)

// conn is the server's bookkeeping for the single client it ever serves
// at once (spec.md §4.I: "at most one client; further accepts are
// rejected until the current client disconnects").
type conn struct {
	netConn        net.Conn
	writer         *bufio.Writer
	writeMu        sync.Mutex
	mu             sync.Mutex
	unsolicited    bool
	updateInterval time.Duration
	stopTicker     chan struct{}
}

func (c *conn) send(line string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	fmt.Fprintf(c.writer, "<%s>\n", line)
	c.writer.Flush()
}

// Server is the command-port TCP server: it holds the live Program[0..MAX)
// and Preview[0..MAX) tally vector and serves queries and pushes against
// it (spec.md §4.I). It never writes the vector itself — Update is the
// only mutator, called from the tally router.
type Server struct {
	host string
	port int

	logger *logging.Logger

	mu       sync.Mutex
	program  [MaxTally]bool
	preview  [MaxTally]bool
	active   *conn
	listener net.Listener
}

// NewServer builds a Server. The command port is read-only with respect
// to tally state (spec.md §6's grammar has no inbound write verb); tally
// changes reach it only via Update, called from the tally router.
func NewServer(host string, port int, logger *logging.Logger) *Server {
	return &Server{host: host, port: port, logger: logger}
}

// Start binds the listener and accepts connections until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("cmdport: listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.WithField("addr", ln.Addr().String()).Info("command-port listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("cmdport: accept: %w", err)
		}

		s.mu.Lock()
		if s.active != nil {
			s.mu.Unlock()
			health.CommandPortConnections.WithLabelValues("rejected").Inc()
			c.Close()
			continue
		}
		cs := &conn{netConn: c, writer: bufio.NewWriter(c), unsolicited: true}
		s.active = cs
		s.mu.Unlock()
		health.CommandPortConnections.WithLabelValues("accepted").Inc()

		go s.handle(ctx, cs)
	}
}

func (s *Server) handle(ctx context.Context, cs *conn) {
	defer func() {
		s.mu.Lock()
		if s.active == cs {
			s.active = nil
		}
		s.mu.Unlock()
		cs.mu.Lock()
		if cs.stopTicker != nil {
			close(cs.stopTicker)
		}
		cs.mu.Unlock()
		cs.netConn.Close()
	}()

	scanner := bufio.NewScanner(cs.netConn)
	scanner.Split(frameSplit)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.dispatch(cs, parseRequest(scanner.Text()))
	}
}

func (s *Server) dispatch(cs *conn, req request) {
	switch req.kind {
	case reqPing:
		cs.send("PONG")

	case reqTallyDumpAll:
		s.mu.Lock()
		var lines []string
		if req.channel == "PGM" {
			for i, v := range s.program {
				lines = append(lines, tallyLine("PGM", i, v))
			}
		} else {
			for i, v := range s.preview {
				lines = append(lines, tallyLine("PVW", i, v))
			}
		}
		s.mu.Unlock()
		for _, l := range lines {
			cs.send(l)
		}

	case reqTallyQuery:
		if req.index < 0 || req.index >= MaxTally {
			return
		}
		s.mu.Lock()
		var v bool
		if req.channel == "PGM" {
			v = s.program[req.index]
		} else {
			v = s.preview[req.index]
		}
		s.mu.Unlock()
		cs.send(tallyLine(req.channel, req.index, v))

	case reqUpdateTime:
		ms, ok := parseAssignedInt(req.raw, "UPDATE.TIME")
		if !ok {
			return
		}
		s.setUpdateInterval(cs, time.Duration(ms)*time.Millisecond)
		cs.send(fmt.Sprintf("UPDATE.TIME=%d", ms))

	case reqUpdateUnsolicited:
		v, ok := parseAssignedInt(req.raw, "UPDATE.UNSOLICITED")
		if !ok {
			return
		}
		cs.mu.Lock()
		cs.unsolicited = v != 0
		cs.mu.Unlock()
		cs.send(fmt.Sprintf("UPDATE.UNSOLICITED=%d", v))
	}
}

func (s *Server) setUpdateInterval(cs *conn, interval time.Duration) {
	cs.mu.Lock()
	if cs.stopTicker != nil {
		close(cs.stopTicker)
		cs.stopTicker = nil
	}
	cs.updateInterval = interval
	var stop chan struct{}
	if interval > 0 {
		stop = make(chan struct{})
		cs.stopTicker = stop
	}
	cs.mu.Unlock()

	if stop == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.pushFullVector(cs)
			}
		}
	}()
}

func (s *Server) pushFullVector(cs *conn) {
	s.mu.Lock()
	lines := make([]string, 0, 2*MaxTally)
	for i, v := range s.program {
		lines = append(lines, tallyLine("PGM", i, v))
	}
	for i, v := range s.preview {
		lines = append(lines, tallyLine("PVW", i, v))
	}
	s.mu.Unlock()
	for _, l := range lines {
		cs.send(l)
	}
}

// Update records a tally state change from the router (spec.md §4.H: the
// command port is also a sink for tally-updated events from the UMD/router
// side) and pushes it to the connected client if unsolicited pushes are
// enabled.
func (s *Server) Update(deviceIndex int, param string, on bool) {
	if deviceIndex < 0 || deviceIndex >= MaxTally {
		return
	}
	var channel string
	s.mu.Lock()
	switch param {
	case "tally.program":
		if s.program[deviceIndex] == on {
			s.mu.Unlock()
			return
		}
		s.program[deviceIndex] = on
		channel = "PGM"
	case "tally.preview":
		if s.preview[deviceIndex] == on {
			s.mu.Unlock()
			return
		}
		s.preview[deviceIndex] = on
		channel = "PVW"
	default:
		s.mu.Unlock()
		return
	}
	active := s.active
	s.mu.Unlock()

	if active == nil {
		return
	}
	active.mu.Lock()
	unsolicited := active.unsolicited
	active.mu.Unlock()
	if unsolicited {
		active.send(tallyLine(channel, deviceIndex, on))
	}
}
