package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/internal/config"
	"github.com/menchan-Rub/AetherOS-sub000/internal/obsmetrics"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
)

// State is the journal's lifecycle state.
type State int32

const (
	StateInitializing State = iota
	StateIdle
	StateInTransaction
	StateRecovering
	StateError
)

// DeviceLookup resolves a record's device_id to the BlockDevice it
// targets, so the journal can apply Metadata/Data records during
// writeback and recovery.
type DeviceLookup func(deviceID uint64) (capability.BlockDevice, bool)

type pendingTx struct {
	id      uint64
	records []Record
}

type commitJob struct {
	txID    uint64
	records []Record
	barrier chan error // non-nil only for Sync's barrier job
}

// Manager owns one on-device journal region backed by a
// capability.BlockDevice whose block size is the journal's page size;
// records are packed and each commit group padded out to whole journal
// blocks.
type Manager struct {
	dev     capability.BlockDevice
	devices DeviceLookup
	clock   capability.Clock
	log     capability.Logger

	mu                sync.Mutex
	state             State
	nextTxID          uint64
	current           *pendingTx
	lastCheckpointSeq uint64
	nextLogBlock      uint64
	headerMarkedDirty bool
	archive           ArchiveSink
	flushMode         config.FlushMode

	lastAppliedTxID atomic.Uint64

	queue   chan commitJob
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New builds a journal Manager. queueDepth bounds the commit queue;
// Commit blocks once the queue is full, which is the back-pressure
// callers see when the writeback worker falls behind.
func New(dev capability.BlockDevice, devices DeviceLookup, queueDepth int, clock capability.Clock, log capability.Logger) *Manager {
	if clock == nil {
		clock = capability.SystemClock{}
	}
	if log == nil {
		log = capability.NoopLogger{}
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &Manager{
		dev:          dev,
		devices:      devices,
		clock:        clock,
		log:          log,
		state:        StateInitializing,
		nextLogBlock: 1,
		queue:        make(chan commitJob, queueDepth),
		stopCh:       make(chan struct{}),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetFlushMode selects the durability mode the writeback worker uses.
// FlushAuto (the default) fsyncs the journal device once per commit;
// FlushBatched defers that fsync to the next Sync or Checkpoint;
// FlushFull additionally fsyncs every target device a commit touched.
func (m *Manager) SetFlushMode(mode config.FlushMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushMode = mode
}

// Init reads the journal header, validates it, runs recovery only when
// the header's Dirty flag is set (the writeback worker sets it before
// the first log write after each checkpoint), and leaves the journal
// Idle.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, err := m.dev.ReadBlock(0)
	if err != nil {
		m.state = StateError
		return kerrors.Wrap("journal.init", kerrors.DeviceError, err)
	}
	hdr, err := DecodeHeader(buf)
	if err != nil {
		if !isAllZero(buf) {
			m.state = StateError
			return kerrors.Wrap("journal.init", kerrors.JournalError, err)
		}
		// Freshly allocated backing device: format a new header rather
		// than treating an all-zero block as corruption.
		hdr = Header{
			Version:           1,
			JournalSizeBytes:  m.dev.TotalBlocks() * m.dev.BlockSize(),
			BlockSize:         uint32(m.dev.BlockSize()),
			Dirty:             false,
			LastCheckpointSeq: 0,
		}
	}
	m.lastCheckpointSeq = hdr.LastCheckpointSeq
	m.nextTxID = hdr.LastCheckpointSeq + 1
	m.lastAppliedTxID.Store(hdr.LastCheckpointSeq)

	if hdr.Dirty {
		m.state = StateRecovering
		highest, scanErr := m.recoverLocked(hdr)
		if scanErr != nil {
			m.state = StateError
			return kerrors.Wrap("journal.init", kerrors.JournalError, scanErr)
		}
		if highest > m.nextTxID {
			m.nextTxID = highest
		}
		m.lastAppliedTxID.Store(highest - 1)
	}

	hdr.Dirty = false
	if err := m.writeHeader(hdr); err != nil {
		m.state = StateError
		return err
	}
	m.state = StateIdle
	return nil
}

// Begin opens the single active transaction. Only valid from Idle.
func (m *Manager) Begin() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return 0, kerrors.New("journal.begin", kerrors.TransactionFailed, "journal is not idle")
	}
	id := m.nextTxID
	m.nextTxID++
	m.current = &pendingTx{id: id}
	m.state = StateInTransaction
	return id, nil
}

// LogMetadata appends an in-memory metadata record to the active
// transaction.
func (m *Manager) LogMetadata(txID, deviceID, block uint64, payload []byte) error {
	return m.logRecord(KindMetadata, txID, deviceID, block, payload)
}

// LogData appends an in-memory data record.
func (m *Manager) LogData(txID, deviceID, block uint64, payload []byte) error {
	return m.logRecord(KindData, txID, deviceID, block, payload)
}

func (m *Manager) logRecord(kind RecordKind, txID, deviceID, block uint64, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateInTransaction || m.current == nil || m.current.id != txID {
		return kerrors.New("journal.log", kerrors.TransactionFailed, "no active transaction with that id")
	}
	m.current.records = append(m.current.records, Record{
		Kind: kind, TxID: txID, DeviceID: deviceID, BlockNumber: block, Payload: payload,
	})
	return nil
}

// Commit serializes the transaction and enqueues it for writeback,
// returning the journal to Idle. Durability is only guaranteed after
// Sync completes.
func (m *Manager) Commit(txID uint64) error {
	m.mu.Lock()
	if m.state != StateInTransaction || m.current == nil || m.current.id != txID {
		m.mu.Unlock()
		return kerrors.New("journal.commit", kerrors.TransactionFailed, "no active transaction with that id")
	}
	tx := m.current
	m.current = nil
	m.state = StateIdle
	m.mu.Unlock()

	select {
	case m.queue <- commitJob{txID: tx.id, records: tx.records}:
		return nil
	case <-m.stopCh:
		return kerrors.New("journal.commit", kerrors.JournalError, "journal worker stopped")
	}
}

// Abort discards the in-memory transaction.
func (m *Manager) Abort(txID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateInTransaction || m.current == nil || m.current.id != txID {
		return kerrors.New("journal.abort", kerrors.TransactionFailed, "no active transaction with that id")
	}
	m.current = nil
	m.state = StateIdle
	return nil
}

// StartWorker launches the single dedicated writeback worker: one
// worker draining the commit queue, not a goroutine per commit.
func (m *Manager) StartWorker(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case job := <-m.queue:
				if job.barrier != nil {
					var err error
					m.mu.Lock()
					failed := m.state == StateError
					batched := m.flushMode == config.FlushBatched
					m.mu.Unlock()
					if failed {
						err = kerrors.New("journal.sync", kerrors.JournalError, "journal is in error state")
					} else if batched {
						// Deferred fsync lands here, at the barrier.
						err = m.dev.Sync()
					}
					job.barrier <- err
					continue
				}
				m.writeback(job)
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop signals the worker to exit and waits for it.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Sync drains every commit currently queued, applying each to its
// target device and fsyncing the journal in between, and does not
// return until all of them are durable. It relies on the single
// worker's FIFO order: a barrier enqueued after N jobs is only
// processed once those N jobs have been.
func (m *Manager) Sync() error {
	barrier := make(chan error, 1)
	select {
	case m.queue <- commitJob{barrier: barrier}:
	case <-m.stopCh:
		return kerrors.New("journal.sync", kerrors.JournalError, "journal worker stopped")
	}
	return <-barrier
}

func (m *Manager) writeback(job commitJob) {
	start := m.clock.NowNanos()

	m.mu.Lock()
	needDirtyMark := !m.headerMarkedDirty
	m.headerMarkedDirty = true
	checkpointSeq := m.lastCheckpointSeq
	flushMode := m.flushMode
	m.mu.Unlock()
	if needDirtyMark {
		hdr := Header{
			Version:           1,
			JournalSizeBytes:  m.dev.TotalBlocks() * m.dev.BlockSize(),
			BlockSize:         uint32(m.dev.BlockSize()),
			Dirty:             true,
			LastCheckpointSeq: checkpointSeq,
		}
		if err := m.writeHeader(hdr); err != nil {
			m.fail("journal.writeback", err)
			return
		}
	}

	full := append([]Record{{Kind: KindBegin, TxID: job.txID}}, job.records...)
	full = append(full, Record{Kind: KindCommit, TxID: job.txID})

	var raw []byte
	for _, r := range full {
		raw = append(raw, r.Encode()...)
	}
	blockSize := int(m.dev.BlockSize())
	numBlocks := (len(raw) + blockSize - 1) / blockSize
	padded := make([]byte, numBlocks*blockSize)
	copy(padded, raw)

	m.mu.Lock()
	startBlock := m.nextLogBlock
	m.nextLogBlock += uint64(numBlocks)
	m.mu.Unlock()

	for i := 0; i < numBlocks; i++ {
		if err := m.dev.WriteBlock(startBlock+uint64(i), padded[i*blockSize:(i+1)*blockSize]); err != nil {
			m.fail("journal.writeback", err)
			return
		}
	}
	if flushMode != config.FlushBatched {
		if err := m.dev.Sync(); err != nil {
			m.fail("journal.writeback", err)
			return
		}
	}

	touched := make(map[uint64]capability.BlockDevice)
	for _, r := range job.records {
		dev, ok := m.devices(r.DeviceID)
		if !ok {
			m.fail("journal.writeback", kerrors.New("journal.writeback", kerrors.NotFound, "unknown device id"))
			return
		}
		if err := dev.WriteBlock(r.BlockNumber, r.Payload); err != nil {
			m.fail("journal.writeback", err)
			return
		}
		touched[r.DeviceID] = dev
	}
	if flushMode == config.FlushFull {
		for _, dev := range touched {
			if err := dev.Sync(); err != nil {
				m.fail("journal.writeback", err)
				return
			}
		}
	}

	m.lastAppliedTxID.Store(job.txID)
	obsmetrics.JournalUsedBytes.Add(float64(numBlocks * blockSize))
	obsmetrics.JournalCommits.WithLabelValues("success").Inc()
	obsmetrics.JournalSyncSeconds.Observe(time.Duration(m.clock.NowNanos() - start).Seconds())
}

func (m *Manager) fail(op string, err error) {
	m.mu.Lock()
	m.state = StateError
	m.mu.Unlock()
	obsmetrics.JournalCommits.WithLabelValues("error").Inc()
	m.log.Error("journal writeback failed", "op", op, "err", err)
}

// Checkpoint flushes all enqueued commits, records the highest durable
// tx_id, and resets the log write cursor so prior log contents are no
// longer needed for recovery.
func (m *Manager) Checkpoint() error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return kerrors.New("journal.checkpoint", kerrors.TransactionFailed, "journal is not idle")
	}
	m.mu.Unlock()

	if err := m.Sync(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateError {
		return kerrors.New("journal.checkpoint", kerrors.JournalError, "journal is in error state")
	}
	m.archiveRetiredLog()
	m.lastCheckpointSeq = m.lastAppliedTxID.Load()
	m.nextLogBlock = 1
	m.headerMarkedDirty = false
	hdr := Header{
		Version:           1,
		JournalSizeBytes:  m.dev.TotalBlocks() * m.dev.BlockSize(),
		BlockSize:         uint32(m.dev.BlockSize()),
		Dirty:             false,
		LastCheckpointSeq: m.lastCheckpointSeq,
	}
	obsmetrics.JournalUsedBytes.Set(0)
	return m.writeHeader(hdr)
}

func (m *Manager) writeHeader(hdr Header) error {
	if err := m.dev.WriteBlock(0, padToBlock(hdr.Encode(), int(m.dev.BlockSize()))); err != nil {
		return kerrors.Wrap("journal.write_header", kerrors.DeviceError, err)
	}
	return m.dev.Sync()
}

func padToBlock(b []byte, blockSize int) []byte {
	if len(b) >= blockSize {
		return b[:blockSize]
	}
	out := make([]byte, blockSize)
	copy(out, b)
	return out
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
