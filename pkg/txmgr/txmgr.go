package txmgr

import (
	"runtime"
	"sync"

	"github.com/menchan-Rub/AetherOS-sub000/internal/capability"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/journal"
	"github.com/menchan-Rub/AetherOS-sub000/pkg/kerrors"
)

// DeviceLookup resolves a device id to the BlockDevice backing it.
type DeviceLookup func(deviceID uint64) (capability.BlockDevice, bool)

// DriverLookup resolves a device id to the FilesystemDriver mounted on
// it, used only for the metadata/data classification hook.
type DriverLookup func(deviceID uint64) (capability.FilesystemDriver, bool)

// Manager groups per-device block writes into atomic units: a thin
// layer over a journal.Manager, staging writes in memory until commit.
type Manager struct {
	jr      *journal.Manager
	devices DeviceLookup
	drivers DriverLookup
	log     capability.Logger
}

func New(jr *journal.Manager, devices DeviceLookup, drivers DriverLookup, log capability.Logger) *Manager {
	if log == nil {
		log = capability.NoopLogger{}
	}
	return &Manager{jr: jr, devices: devices, drivers: drivers, log: log}
}

type txState int

const (
	txOpen txState = iota
	txCommitted
	txAborted
)

type stagedKey struct {
	deviceID uint64
	block    uint64
}

// Transaction is a staged set of block writes. A block appears at most
// once in the staged set: later writes overwrite earlier ones, which
// falls out of using a map keyed by (device, block).
type Transaction struct {
	mgr *Manager

	mu          sync.Mutex
	state       txState
	txID        uint64
	opened      bool
	staged      map[stagedKey][]byte
	stagedOrder []stagedKey
}

// Begin returns a new staged transaction. The underlying journal
// transaction is opened lazily on the first WriteBlock call, so a
// read-only transaction never touches the journal at all.
func (m *Manager) Begin() *Transaction {
	tx := &Transaction{mgr: m, state: txOpen, staged: make(map[stagedKey][]byte)}
	runtime.SetFinalizer(tx, finalizeLeakedTransaction)
	return tx
}

func finalizeLeakedTransaction(tx *Transaction) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state == txOpen {
		tx.mgr.log.Warn("transaction dropped without commit or abort", "tx_id", tx.txID)
	}
}

// ReadBlock returns the staged image for (dev, blk) if this transaction
// has already written it; otherwise it reads through to the device.
func (tx *Transaction) ReadBlock(deviceID, block uint64) ([]byte, error) {
	tx.mu.Lock()
	if tx.state != txOpen {
		tx.mu.Unlock()
		return nil, kerrors.New("txmgr.read_block", kerrors.TransactionFailed, "transaction is not open")
	}
	if b, ok := tx.staged[stagedKey{deviceID, block}]; ok {
		out := append([]byte(nil), b...)
		tx.mu.Unlock()
		return out, nil
	}
	tx.mu.Unlock()

	dev, ok := tx.mgr.devices(deviceID)
	if !ok {
		return nil, kerrors.New("txmgr.read_block", kerrors.NotFound, "unknown device id")
	}
	return dev.ReadBlock(block)
}

// WriteBlock stages (or overwrites) the (dev, blk) entry in memory; it
// never touches the device or applies anything until Commit.
func (tx *Transaction) WriteBlock(deviceID, block uint64, payload []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != txOpen {
		return kerrors.New("txmgr.write_block", kerrors.TransactionFailed, "transaction is not open")
	}
	if !tx.opened {
		id, err := tx.mgr.jr.Begin()
		if err != nil {
			return kerrors.Wrap("txmgr.write_block", kerrors.TransactionFailed, err)
		}
		tx.txID = id
		tx.opened = true
	}
	key := stagedKey{deviceID, block}
	if _, exists := tx.staged[key]; !exists {
		tx.stagedOrder = append(tx.stagedOrder, key)
	}
	tx.staged[key] = append([]byte(nil), payload...)
	return nil
}

// Commit classifies every staged block as metadata or data via the
// mounted driver's IsMetadataBlock hook, logs it to the journal, and
// commits the journal transaction. Any error aborts the transaction
// and discards staged entries.
func (tx *Transaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != txOpen {
		return kerrors.New("txmgr.commit", kerrors.TransactionFailed, "transaction is not open")
	}
	if !tx.opened {
		tx.state = txCommitted
		return nil
	}

	for _, key := range tx.stagedOrder {
		payload := tx.staged[key]
		driver, ok := tx.mgr.drivers(key.deviceID)
		isMetadata := ok && driver.IsMetadataBlock(key.deviceID, key.block)

		var err error
		if isMetadata {
			err = tx.mgr.jr.LogMetadata(tx.txID, key.deviceID, key.block, payload)
		} else {
			err = tx.mgr.jr.LogData(tx.txID, key.deviceID, key.block, payload)
		}
		if err != nil {
			_ = tx.mgr.jr.Abort(tx.txID)
			tx.state = txAborted
			tx.staged = nil
			return kerrors.Wrap("txmgr.commit", kerrors.TransactionFailed, err)
		}
	}

	if err := tx.mgr.jr.Commit(tx.txID); err != nil {
		tx.state = txAborted
		tx.staged = nil
		return kerrors.Wrap("txmgr.commit", kerrors.TransactionFailed, err)
	}
	tx.state = txCommitted
	tx.staged = nil
	return nil
}

// Abort discards staged entries and aborts the journal transaction if
// one was opened.
func (tx *Transaction) Abort() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != txOpen {
		return nil
	}
	if tx.opened {
		if err := tx.mgr.jr.Abort(tx.txID); err != nil {
			tx.state = txAborted
			tx.staged = nil
			return kerrors.Wrap("txmgr.abort", kerrors.TransactionFailed, err)
		}
	}
	tx.state = txAborted
	tx.staged = nil
	return nil
}

// WithTransaction opens a transaction, runs f, and commits on a nil
// return or aborts otherwise.
func (m *Manager) WithTransaction(f func(*Transaction) error) error {
	tx := m.Begin()
	if err := f(tx); err != nil {
		_ = tx.Abort()
		return err
	}
	return tx.Commit()
}

// Sync blocks until every transaction committed so far is durable and
// applied to its target devices. Commit alone only enqueues writeback;
// callers acknowledging a user-visible durability point call Sync first.
func (m *Manager) Sync() error {
	return m.jr.Sync()
}
