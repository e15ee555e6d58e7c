package replication

import (
	"crypto/tls"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexusdb/nexus/pkg/config"
	"github.com/nexusdb/nexus/pkg/engine"
	"github.com/nexusdb/nexus/pkg/events"
	"github.com/nexusdb/nexus/pkg/log"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/wal"
)

// replicaSendQueueSize bounds how far a replica can fall behind the live
// stream before the master drops it, per spec.md §5's backpressure
// policy: a slow replica is disconnected rather than allowed to stall
// the broadcast for everyone else. It reconnects and, if its last acked
// offset has since aged out of the ring, resyncs from a snapshot.
const replicaSendQueueSize = 4096

// Master is the replication server side: it tails the WAL of each
// database a connected replica has asked for, retains a ringItem backlog per database for catch-up, and streams
// entries to connected replicas, falling back to a snapshot transfer for
// one whose requested offset has aged out of the ring.
type Master struct {
	eng *engine.Engine
	cfg *config.Config
	log zerolog.Logger

	mu       sync.Mutex
	rings    map[string]*walRing
	tailing  map[string]bool
	replicas map[string]*replicaSession

	tlsConf *tls.Config
	ln      net.Listener

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// replicaSession is one connected replica's live state.
type replicaSession struct {
	id       string
	database string
	conn     *conn

	sendCh chan ringItem
	done   chan struct{}

	ackOffset uint64
	ackMu     sync.Mutex
}

func (s *replicaSession) setAck(off uint64) {
	s.ackMu.Lock()
	if off > s.ackOffset {
		s.ackOffset = off
	}
	s.ackMu.Unlock()
}

func (s *replicaSession) ack() uint64 {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	return s.ackOffset
}

// NewMaster builds a Master over eng using cfg.Replication's bind address
// and TLS settings. Call Start to begin listening.
func NewMaster(eng *engine.Engine, cfg *config.Config) (*Master, error) {
	tlsConf, err := buildTLSConfig(cfg.Replication)
	if err != nil {
		return nil, err
	}
	return &Master{
		eng:      eng,
		cfg:      cfg,
		log:      log.WithComponent("replication-master"),
		rings:    map[string]*walRing{},
		tailing:  map[string]bool{},
		replicas: map[string]*replicaSession{},
		tlsConf:  tlsConf,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start opens the replication listener and begins accepting replica
// connections.
func (m *Master) Start() error {
	ln, err := net.Listen("tcp", m.cfg.Replication.BindAddr)
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.Master.Start", err)
	}
	if m.tlsConf != nil {
		ln = tls.NewListener(ln, m.tlsConf)
	}
	m.ln = ln

	m.wg.Add(1)
	go m.acceptLoop()
	m.log.Info().Str("bind_addr", m.cfg.Replication.BindAddr).Msg("replication master listening")
	return nil
}

// Stop closes the listener, disconnects every replica and waits for all
// background goroutines to exit.
func (m *Master) Stop() error {
	close(m.stopCh)
	if m.ln != nil {
		m.ln.Close()
	}
	m.mu.Lock()
	for _, s := range m.replicas {
		s.conn.Close()
	}
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

func (m *Master) acceptLoop() {
	defer m.wg.Done()
	for {
		nc, err := m.ln.Accept()
		if err != nil {
			select {
			case <-m.stopCh:
				return
			default:
				m.log.Warn().Err(err).Msg("accept error")
				continue
			}
		}
		m.wg.Add(1)
		go m.handleConn(nc)
	}
}

func (m *Master) ringFor(db string) *walRing {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rings[db]
	if !ok {
		r = newWalRing(defaultRingCapacity)
		m.rings[db] = r
	}
	return r
}

// ensureTailer starts (once per database) the goroutine that reads newly
// committed entries from db's WAL and feeds them into its ring and every
// subscribed replica's send queue.
func (m *Master) ensureTailer(db string) {
	m.mu.Lock()
	if m.tailing[db] {
		m.mu.Unlock()
		return
	}
	m.tailing[db] = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.tailDatabase(db)
}

func (m *Master) tailDatabase(db string) {
	defer m.wg.Done()
	logger := m.log.With().Str("database", db).Logger()

	path, err := m.eng.WALPath(db)
	if err != nil {
		logger.Error().Err(err).Msg("cannot tail database: no such database")
		return
	}

	r, err := wal.NewReader(path, 0)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open wal for tailing")
		return
	}
	defer r.Close()

	ring := m.ringFor(db)
	const pollInterval = 50 * time.Millisecond

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		entry, err := r.Next()
		if err == io.EOF {
			time.Sleep(pollInterval)
			continue
		}
		if err != nil {
			// A corrupt tail can appear if we raced an in-progress append;
			// back off and retry from the same offset rather than giving up.
			logger.Warn().Err(err).Msg("wal tail read error, retrying")
			time.Sleep(pollInterval)
			r, _ = wal.NewReader(path, r.Offset())
			continue
		}

		item := ringItem{offset: entry.Offset, entry: entry}
		ring.push(item)
		m.broadcast(db, item)
	}
}

func (m *Master) broadcast(db string, item ringItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.replicas {
		if s.database != db {
			continue
		}
		select {
		case s.sendCh <- item:
		default:
			// Slowest replica: drop the connection rather than block
			// the broadcast for everyone else; it resyncs on reconnect.
			s.conn.Close()
		}
	}
}

func (m *Master) registerReplica(s *replicaSession) {
	m.mu.Lock()
	m.replicas[s.id] = s
	m.mu.Unlock()
	m.eng.Events().Publish(&events.Event{
		Type:     events.ReplicaConnected,
		Database: s.database,
		Message:  s.id,
	})
}

func (m *Master) unregisterReplica(s *replicaSession) {
	m.mu.Lock()
	delete(m.replicas, s.id)
	m.mu.Unlock()
	m.eng.Events().Publish(&events.Event{
		Type:     events.ReplicaLost,
		Database: s.database,
		Message:  s.id,
	})
}

// ConnectedReplicas reports how many replicas are currently attached,
// for ReplicationStatus.
func (m *Master) ConnectedReplicas() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replicas)
}

func (m *Master) handleConn(nc net.Conn) {
	defer m.wg.Done()
	defer nc.Close()

	c := newConn(nc)
	c.setDeadline(10 * time.Second)

	fr, err := c.readFrame()
	if err != nil || fr.Type != MsgHello {
		m.log.Warn().Err(err).Msg("replica handshake failed")
		return
	}
	hello, err := decodeHello(fr.Payload)
	if err != nil {
		m.log.Warn().Err(err).Msg("malformed hello")
		return
	}
	c.setDeadline(0)

	logger := log.WithReplica(hello.ReplicaID)
	logger.Info().Str("database", hello.Database).Uint64("last_applied_offset", hello.LastAppliedOffset).
		Msg("replica connected")

	m.ensureTailer(hello.Database)
	ring := m.ringFor(hello.Database)

	resumeFrom := hello.LastAppliedOffset
	backlog, ok := ring.since(resumeFrom)
	if !ok {
		snapOffset, err := m.sendSnapshot(c, hello.Database)
		if err != nil {
			logger.Warn().Err(err).Msg("snapshot transfer failed")
			return
		}
		resumeFrom = snapOffset
		backlog, _ = ring.since(resumeFrom)
	}

	if err := c.writeFrame(MsgWelcome, WelcomeMsg{MasterID: m.cfg.Replication.BindAddr, ResumeAt: resumeFrom}.encode()); err != nil {
		return
	}

	sess := &replicaSession{
		id:       hello.ReplicaID,
		database: hello.Database,
		conn:     c,
		sendCh:   make(chan ringItem, replicaSendQueueSize),
		done:     make(chan struct{}),
	}
	sess.setAck(resumeFrom)
	m.registerReplica(sess)
	defer m.unregisterReplica(sess)

	for _, item := range backlog {
		if err := m.sendEntry(c, hello.Database, item); err != nil {
			return
		}
	}

	go m.readAcks(sess, logger)

	heartbeat := time.Duration(m.cfg.Replication.HeartbeatMs) * time.Millisecond
	if heartbeat <= 0 {
		heartbeat = 5 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case item := <-sess.sendCh:
			if err := m.sendEntry(c, hello.Database, item); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writeFrame(MsgPing, nil); err != nil {
				return
			}
		case <-sess.done:
			return
		case <-m.stopCh:
			return
		}
	}
}

func (m *Master) sendEntry(c *conn, db string, item ringItem) error {
	msg := WalEntryMsg{Database: db, Offset: item.offset, Entry: item.entry}
	return c.writeFrame(MsgWalEntry, msg.encode())
}

// readAcks drains WalAck and Pong frames from a replica connection until
// it closes or sends something unexpected.
func (m *Master) readAcks(sess *replicaSession, logger zerolog.Logger) {
	defer close(sess.done)
	for {
		fr, err := sess.conn.readFrame()
		if err != nil {
			return
		}
		switch fr.Type {
		case MsgWalAck:
			ack, err := decodeWalAck(fr.Payload)
			if err != nil {
				return
			}
			sess.setAck(ack.Offset)
		case MsgPong:
		case MsgRequestSnapshot:
			logger.Info().Msg("replica requested a fresh snapshot mid-stream")
			return
		default:
			logger.Warn().Str("type", fr.Type.String()).Msg("unexpected message from replica")
			return
		}
	}
}

func (m *Master) sendSnapshot(c *conn, db string) (offset uint64, err error) {
	storeDir, indexDir, off, err := m.eng.SnapshotInfo(db)
	if err != nil {
		return 0, err
	}

	path, size, crc, err := buildSnapshot(m.eng.DataDir(), storeDir, indexDir)
	if err != nil {
		return 0, err
	}
	defer os.Remove(path)

	meta := SnapshotMetaMsg{Database: db, Offset: off, TotalSize: size, CRC32: crc}
	if err := c.writeFrame(MsgSnapshotMeta, meta.encode()); err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.sendSnapshot", err)
	}
	defer f.Close()

	const chunkSize = 256 * 1024
	buf := make([]byte, chunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if err := c.writeFrame(MsgSnapshotChunk, buf[:n]); err != nil {
				return 0, err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.sendSnapshot", readErr)
		}
	}

	if err := c.writeFrame(MsgSnapshotComplete, nil); err != nil {
		return 0, err
	}
	return off, nil
}

// AggregateAck returns the lowest acknowledged offset across every
// replica currently attached to db, the quantity a sync_quorum commit
// path would wait to pass.
func (m *Master) AggregateAck(db string) (offset uint64, replicas int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	min := uint64(0)
	first := true
	for _, s := range m.replicas {
		if s.database != db {
			continue
		}
		a := s.ack()
		if first || a < min {
			min = a
			first = false
		}
		replicas++
	}
	return min, replicas
}
