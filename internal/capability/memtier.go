package capability

import "sync"

// MemTierDevice is an in-memory TierDevice for tests: it never reports
// ECC events unless explicitly told to, and returns static temperature
// and voltage readings.
type MemTierDevice struct {
	base uint64
	size uint64
	kind string

	mu          sync.Mutex
	pendingEcc  []EccEvent
	temperature float32
	voltageDev  float32
	powerState  string
}

// NewMemTierDevice creates a device spanning [base, base+size) of the
// given kind (e.g. "HBM", "PMEM").
func NewMemTierDevice(base, size uint64, kind string) *MemTierDevice {
	return &MemTierDevice{base: base, size: size, kind: kind, temperature: 45, voltageDev: 0}
}

func (d *MemTierDevice) BaseAddress() uint64 { return d.base }
func (d *MemTierDevice) Size() uint64        { return d.size }
func (d *MemTierDevice) Kind() string        { return d.kind }

// InjectECC queues an ECC event to be returned by the next ReadECCStatus
// call for the matching region; test-only hook.
func (d *MemTierDevice) InjectECC(ev EccEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingEcc = append(d.pendingEcc, ev)
}

func (d *MemTierDevice) ReadECCStatus(region uint64) (EccEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, ev := range d.pendingEcc {
		if ev.PhysAddr == region {
			d.pendingEcc = append(d.pendingEcc[:i], d.pendingEcc[i+1:]...)
			return ev, true
		}
	}
	return EccEvent{}, false
}

// SetTemperature sets the value returned by TemperatureC; test-only hook.
func (d *MemTierDevice) SetTemperature(c float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.temperature = c
}

// SetVoltageDeviation sets the value returned by VoltageDeviationPct; test-only hook.
func (d *MemTierDevice) SetVoltageDeviation(pct float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voltageDev = pct
}

func (d *MemTierDevice) TemperatureC() (float32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.temperature, true
}

func (d *MemTierDevice) VoltageDeviationPct() (float32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voltageDev, true
}

func (d *MemTierDevice) SetPowerState(state string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.powerState = state
	return nil
}

// PowerState returns the last state set via SetPowerState; test-only hook.
func (d *MemTierDevice) PowerState() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.powerState
}

// IdentityMapper is a Mapper that only records the most recent remap
// request; enough for tests that check remap was invoked with the right
// arguments without a real page-table implementation.
type IdentityMapper struct {
	mu       sync.Mutex
	lastVirt uint64
	lastPhys uint64
	lastSize uint64
	failNext bool
}

func (m *IdentityMapper) Remap(virt, newPhys uint64, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errRemapFailed
	}
	m.lastVirt, m.lastPhys, m.lastSize = virt, newPhys, size
	return nil
}

// FailNext makes the next Remap call return an error; test-only hook.
func (m *IdentityMapper) FailNext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

// Last returns the arguments of the most recent successful Remap call.
func (m *IdentityMapper) Last() (virt, phys, size uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastVirt, m.lastPhys, m.lastSize
}

var errRemapFailed = remapError{}

type remapError struct{}

func (remapError) Error() string { return "mapper: remap failed" }
