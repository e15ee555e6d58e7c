package replication

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nexusdb/nexus/pkg/config"
	"github.com/nexusdb/nexus/pkg/engine"
	"github.com/nexusdb/nexus/pkg/health"
	"github.com/nexusdb/nexus/pkg/log"
	"github.com/nexusdb/nexus/pkg/nexuserr"
)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// Replica is the replication client side: it connects to a master,
// streams its database's WAL (resyncing from a snapshot when needed),
// and applies entries through the engine's ReplicaSink, per spec.md
// §4.9. It replicates exactly one database — the engine's configured
// default — since spec.md §6's replication.* config carries no
// per-database keys to address more than one.
type Replica struct {
	eng      *engine.Engine
	cfg      *config.Config
	database string
	id       string
	tlsConf  *tls.Config
	log      zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	connected   atomic.Bool
	lastContact atomic.Int64 // unix nanos
	lagBytes    atomic.Int64
	appliedOff  atomic.Uint64
}

// NewReplica builds a Replica that mirrors eng's default database from
// cfg.Replication.MasterAddr.
func NewReplica(eng *engine.Engine, cfg *config.Config) (*Replica, error) {
	tlsConf, err := buildTLSConfig(cfg.Replication)
	if err != nil {
		return nil, err
	}
	return &Replica{
		eng:      eng,
		cfg:      cfg,
		database: cfg.DefaultDatabase,
		id:       uuid.New().String(),
		tlsConf:  tlsConf,
		log:      log.WithComponent("replication-replica"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins the replica's connect/stream/reconnect loop in the
// background.
func (r *Replica) Start() error {
	r.wg.Add(1)
	go r.run()
	return nil
}

// Stop signals the connect loop to exit and waits for it.
func (r *Replica) Stop() error {
	close(r.stopCh)
	r.wg.Wait()
	return nil
}

// MasterDownFor reports how long it's been since the master was last
// heard from (a successful read of any frame), 0 while connected.
func (r *Replica) MasterDownFor() time.Duration {
	if r.connected.Load() {
		return 0
	}
	last := r.lastContact.Load()
	if last == 0 {
		return 0
	}
	return time.Since(time.Unix(0, last))
}

// AppliedOffset returns the last WAL offset this replica has applied.
func (r *Replica) AppliedOffset() uint64 { return r.appliedOff.Load() }

// LagBytes estimates how far behind the master's tip this replica is,
// computed from the gap between consecutive entry offsets it has seen.
func (r *Replica) LagBytes() int64 { return r.lagBytes.Load() }

func (r *Replica) run() {
	defer r.wg.Done()
	backoff := initialBackoff

	reachChecker := health.NewTCPChecker(r.cfg.Replication.MasterAddr)
	reachStatus := health.NewStatus()
	reachCfg := health.DefaultConfig()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		// A cheap TCP probe before the real (TLS) dial spares the master
		// a half-open handshake attempt while it's still down, and lets
		// reconnect backoff run against "port isn't even open yet" rather
		// than waiting out a full dial timeout each time.
		reachStatus.Update(reachChecker.Check(context.Background()), reachCfg)
		if !reachStatus.Healthy {
			r.log.Debug().Str("master_addr", r.cfg.Replication.MasterAddr).Msg("master unreachable, waiting before retry")
			select {
			case <-r.stopCh:
				return
			case <-time.After(backoff):
			}
			continue
		}

		if err := r.session(); err != nil {
			r.connected.Store(false)
			r.log.Warn().Err(err).Dur("backoff", backoff).Msg("replication session ended, reconnecting")
			select {
			case <-r.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff
	}
}

// session dials the master, completes the handshake (including a
// snapshot transfer if instructed), and streams entries until the
// connection fails or Stop is called.
func (r *Replica) session() error {
	sink, err := r.eng.ReplicaSinkFor(r.database)
	if err != nil {
		return err
	}

	var nc net.Conn
	if r.tlsConf != nil {
		nc, err = tls.Dial("tcp", r.cfg.Replication.MasterAddr, r.tlsConf)
	} else {
		nc, err = net.Dial("tcp", r.cfg.Replication.MasterAddr)
	}
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.Replica.session", err)
	}
	defer nc.Close()
	c := newConn(nc)

	hello := HelloMsg{ReplicaID: r.id, Database: r.database, LastAppliedOffset: sink.Offset()}
	c.setDeadline(10 * time.Second)
	if err := c.writeFrame(MsgHello, hello.encode()); err != nil {
		return err
	}

	sink, err = r.handshakeLoop(c, sink)
	if err != nil {
		return err
	}
	c.setDeadline(0)
	r.connected.Store(true)
	r.touch()

	return r.streamLoop(c, sink)
}

// handshakeLoop processes frames after Hello until Welcome arrives,
// transparently handling an interleaved snapshot transfer. It returns
// the sink to stream through, which changes if a snapshot reopened the
// database.
func (r *Replica) handshakeLoop(c *conn, sink *engine.ReplicaSink) (*engine.ReplicaSink, error) {
	for {
		fr, err := c.readFrame()
		if err != nil {
			return nil, err
		}
		switch fr.Type {
		case MsgWelcome:
			_, err := decodeWelcome(fr.Payload)
			return sink, err
		case MsgSnapshotMeta:
			if err := r.receiveSnapshot(c, fr.Payload); err != nil {
				return nil, err
			}
			sink, err = r.eng.ReplicaSinkFor(r.database)
			if err != nil {
				return nil, err
			}
		case MsgError:
			em, err := decodeError(fr.Payload)
			if err != nil {
				return nil, err
			}
			return nil, nexuserr.New(nexuserr.KindReplication, nexuserr.CodeProtocolError, "replication.handshake", em.String())
		default:
			return nil, nexuserr.New(nexuserr.KindReplication, nexuserr.CodeProtocolError,
				"replication.handshake", "unexpected message type "+fr.Type.String())
		}
	}
}

func (r *Replica) receiveSnapshot(c *conn, metaPayload []byte) error {
	meta, err := decodeSnapshotMeta(metaPayload)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.eng.DataDir(), "recv-snapshot-*.tar.zst")
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.receiveSnapshot", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	var received int64
	for received < meta.TotalSize {
		fr, err := c.readFrame()
		if err != nil {
			tmp.Close()
			return err
		}
		if fr.Type != MsgSnapshotChunk {
			tmp.Close()
			return nexuserr.New(nexuserr.KindReplication, nexuserr.CodeProtocolError,
				"replication.receiveSnapshot", "expected snapshot chunk, got "+fr.Type.String())
		}
		if _, err := tmp.Write(fr.Payload); err != nil {
			tmp.Close()
			return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.receiveSnapshot", err)
		}
		received += int64(len(fr.Payload))
	}
	if err := tmp.Close(); err != nil {
		return nexuserr.Wrap(nexuserr.KindReplication, nexuserr.CodeStorageIO, "replication.receiveSnapshot", err)
	}

	fr, err := c.readFrame()
	if err != nil {
		return err
	}
	if fr.Type != MsgSnapshotComplete {
		return nexuserr.New(nexuserr.KindReplication, nexuserr.CodeProtocolError,
			"replication.receiveSnapshot", "expected snapshot complete, got "+fr.Type.String())
	}

	storeDir, indexDir, err := r.eng.PrepareRestore(meta.Database)
	if err != nil {
		return err
	}
	if err := extractSnapshot(tmpPath, meta.CRC32, storeDir, indexDir); err != nil {
		return err
	}
	if err := r.eng.EnsureDatabaseOpen(meta.Database); err != nil {
		return err
	}
	r.appliedOff.Store(meta.Offset)
	r.log.Info().Str("database", meta.Database).Int64("bytes", received).Msg("loaded snapshot from master")
	return nil
}

// streamLoop applies WalEntry frames and answers Ping with Pong until
// three heartbeat intervals pass with no contact, per spec.md §4.9.
func (r *Replica) streamLoop(c *conn, sink *engine.ReplicaSink) error {
	heartbeat := time.Duration(r.cfg.Replication.HeartbeatMs) * time.Millisecond
	if heartbeat <= 0 {
		heartbeat = 5 * time.Second
	}
	readTimeout := 3 * heartbeat

	var lastOffset uint64
	for {
		select {
		case <-r.stopCh:
			return nil
		default:
		}

		c.setDeadline(readTimeout)
		fr, err := c.readFrame()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nexuserr.New(nexuserr.KindReplication, nexuserr.CodeProtocolError,
					"replication.streamLoop", "missed three heartbeats from master")
			}
			return err
		}
		r.touch()

		switch fr.Type {
		case MsgWalEntry:
			msg, err := decodeWalEntry(fr.Payload)
			if err != nil {
				return err
			}
			if lastOffset != 0 {
				r.lagBytes.Store(int64(msg.Offset) - int64(lastOffset))
			}
			lastOffset = msg.Offset

			if err := sink.Apply(msg.Entry); err != nil {
				r.log.Error().Err(err).Uint64("offset", msg.Offset).
					Msg("replica cannot apply entry, aborting session")
				return err
			}
			r.appliedOff.Store(msg.Offset)

			ack := WalAckMsg{Database: msg.Database, Offset: msg.Offset}
			if err := c.writeFrame(MsgWalAck, ack.encode()); err != nil {
				return err
			}

		case MsgPing:
			if err := c.writeFrame(MsgPong, nil); err != nil {
				return err
			}

		default:
			return nexuserr.New(nexuserr.KindReplication, nexuserr.CodeProtocolError,
				"replication.streamLoop", "unexpected message type "+fr.Type.String())
		}
	}
}

func (r *Replica) touch() {
	r.lastContact.Store(time.Now().UnixNano())
}
