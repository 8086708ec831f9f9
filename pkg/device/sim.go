package device

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("minic.device")

// adcMax is the RP2040's fixed 12-bit ADC range.
const adcMax = 4095

var _ Device = (*Sim)(nil)

type i2cKey struct{ addr, reg int32 }

// Sim is a simulated board. Its zero value is not usable; call NewSim.
type Sim struct {
	mu sync.Mutex

	modes  map[int32]int32
	levels map[int32]int32
	adc    map[int32]int32
	pwm    map[int32]int32

	baud    int32
	uartOut io.Writer
	uartIn  []byte

	i2cClock int32
	i2c      map[i2cKey]int32

	virtual bool
	start   time.Time
	elapsed time.Duration

	fsRoot string

	yield atomic.Bool
}

type SimOption func(*Sim)

// WithUART sends every byte the script writes to the UART to w.
func WithUART(w io.Writer) SimOption {
	return func(s *Sim) { s.uartOut = w }
}

// WithFSRoot sandboxes fs_read and fs_write under dir.
func WithFSRoot(dir string) SimOption {
	return func(s *Sim) { s.fsRoot = dir }
}

// WithVirtualClock makes Sleep advance a counter instead of blocking.
func WithVirtualClock() SimOption {
	return func(s *Sim) { s.virtual = true }
}

func NewSim(opts ...SimOption) *Sim {
	s := &Sim{
		modes:   map[int32]int32{},
		levels:  map[int32]int32{},
		adc:     map[int32]int32{},
		pwm:     map[int32]int32{},
		i2c:     map[i2cKey]int32{},
		uartOut: io.Discard,
		start:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sim) PinMode(pin, mode int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes[pin] = mode
	if mode == InputPullup {
		s.levels[pin] = 1
	}
}

func (s *Sim) DigitalWrite(pin, level int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level != 0 {
		level = 1
	}
	s.levels[pin] = level
}

func (s *Sim) DigitalRead(pin int32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[pin]
}

func (s *Sim) Sleep(ms int32) {
	if ms <= 0 {
		return
	}
	d := time.Duration(ms) * time.Millisecond
	if s.virtual {
		s.mu.Lock()
		s.elapsed += d
		s.mu.Unlock()
		return
	}
	time.Sleep(d)
}

func (s *Sim) Millis() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.virtual {
		return int32(s.elapsed.Milliseconds())
	}
	return int32(time.Since(s.start).Milliseconds())
}

func (s *Sim) AnalogRead(pin int32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adc[pin]
}

func (s *Sim) AnalogWrite(pin, duty int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pwm[pin] = duty
}

func (s *Sim) UARTBegin(baud int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baud = baud
}

func (s *Sim) UARTWrite(b byte) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.uartOut.Write([]byte{b})
	if err != nil {
		log.Warningf("uart write: %s", err)
	}
	return int32(n)
}

func (s *Sim) UARTRead() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.uartIn) == 0 {
		return -1
	}
	b := s.uartIn[0]
	s.uartIn = s.uartIn[1:]
	return int32(b)
}

func (s *Sim) I2CBegin(clock int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.i2cClock = clock
}

func (s *Sim) I2CWrite(addr, reg, val int32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.i2c[i2cKey{addr, reg}] = val & 0xff
	return 0
}

func (s *Sim) I2CRead(addr, reg int32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.i2c[i2cKey{addr, reg}]
	if !ok {
		return -1
	}
	return v
}

func (s *Sim) SPIBegin() {}

// SPITransfer is a loopback: MISO is wired to MOSI.
func (s *Sim) SPITransfer(b byte) int32 { return int32(b) }

func (s *Sim) WriteFile(path, data string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	log.Debugf("fs write %s (%d bytes)", full, len(data))
	return os.WriteFile(full, []byte(data), 0o644)
}

func (s *Sim) ReadFile(path string) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// resolve maps a script path onto the sandbox. Leading slashes and ".."
// segments cannot climb out of the root.
func (s *Sim) resolve(path string) (string, error) {
	if s.fsRoot == "" {
		return "", ErrNoFilesystem
	}
	clean := filepath.Clean("/" + strings.TrimSpace(path))
	if clean == "/" {
		return "", fmt.Errorf("device: invalid path %q", path)
	}
	return filepath.Join(s.fsRoot, clean), nil
}

func (s *Sim) Yield() { s.yield.Store(true) }

// YieldRequested reports whether a script raised the yield flag since the
// last ClearYield.
func (s *Sim) YieldRequested() bool { return s.yield.Load() }

func (s *Sim) ClearYield() { s.yield.Store(false) }

// Host-side probes.

func (s *Sim) SetADC(pin, v int32) {
	if v < 0 {
		v = 0
	}
	if v > adcMax {
		v = adcMax
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adc[pin] = v
}

// FeedUART queues bytes for UARTRead.
func (s *Sim) FeedUART(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uartIn = append(s.uartIn, data...)
}

func (s *Sim) SetI2C(addr, reg, val int32) { s.I2CWrite(addr, reg, val) }

// Pin returns a pin's mode and level.
func (s *Sim) Pin(pin int32) (mode, level int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes[pin], s.levels[pin]
}

func (s *Sim) PWM(pin int32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pwm[pin]
}

func (s *Sim) Baud() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baud
}

func (s *Sim) I2CClock() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.i2cClock
}
