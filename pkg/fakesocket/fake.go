package fakesocket

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"
)

// FakeMetric is a fake metric.
var FakeMetric = []byte("foo.bar.baz:2|c")

// FakeAddr is a fake net.Addr
var FakeAddr = &net.UDPAddr{
	IP:   net.IPv4(127, 0, 0, 1),
	Port: 8181,
}

// Read is a single scripted result of ReadFrom.
type Read struct {
	Data []byte
	Addr net.Addr // FakeAddr if nil
	Err  error
}

// TemporaryError is a net.Error which reports itself as temporary.
type TemporaryError struct{}

func (TemporaryError) Error() string   { return "fake temporary error" }
func (TemporaryError) Timeout() bool   { return false }
func (TemporaryError) Temporary() bool { return true }

// FakePacketConn is a fake net.PacketConn which returns scripted reads in order.  When the script is
// exhausted ReadFrom blocks until more reads are pushed or the connection is closed, after which it
// returns net.ErrClosed.
type FakePacketConn struct {
	reads     chan Read
	closed    chan struct{}
	closeOnce sync.Once
}

// NewFakePacketConn creates a FakePacketConn which will return reads.
func NewFakePacketConn(reads ...Read) *FakePacketConn {
	fpc := &FakePacketConn{
		reads:  make(chan Read, len(reads)+1024),
		closed: make(chan struct{}),
	}
	for _, r := range reads {
		fpc.reads <- r
	}
	return fpc
}

// Push adds a datagram to the script.
func (fpc *FakePacketConn) Push(data []byte) {
	fpc.reads <- Read{Data: data}
}

// PushError adds an error to the script.
func (fpc *FakePacketConn) PushError(err error) {
	fpc.reads <- Read{Err: err}
}

// ReadFrom returns the next scripted read.
func (fpc *FakePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	// Prefer closed, so a closed connection never returns more data.
	select {
	case <-fpc.closed:
		return 0, nil, closedError()
	default:
	}
	select {
	case <-fpc.closed:
		return 0, nil, closedError()
	case r := <-fpc.reads:
		if r.Err != nil {
			return 0, nil, r.Err
		}
		addr := r.Addr
		if addr == nil {
			addr = FakeAddr
		}
		return copy(b, r.Data), addr, nil
	}
}

func closedError() error {
	return &net.OpError{Op: "read", Net: "udp", Addr: FakeAddr, Err: net.ErrClosed}
}

// WriteTo dummy impl.
func (fpc *FakePacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	select {
	case <-fpc.closed:
		return 0, closedError()
	default:
		return len(b), nil
	}
}

// Close closes the connection, it is safe to call more than once.
func (fpc *FakePacketConn) Close() error {
	fpc.closeOnce.Do(func() {
		close(fpc.closed)
	})
	return nil
}

// LocalAddr dummy impl.
func (fpc *FakePacketConn) LocalAddr() net.Addr { return FakeAddr }

// SetDeadline dummy impl.
func (fpc *FakePacketConn) SetDeadline(t time.Time) error { return nil }

// SetReadDeadline dummy impl.
func (fpc *FakePacketConn) SetReadDeadline(t time.Time) error { return nil }

// SetWriteDeadline dummy impl.
func (fpc *FakePacketConn) SetWriteDeadline(t time.Time) error { return nil }

// FakeRandomPacketConn is a fake net.PacketConn providing an endless stream of random metrics.
type FakeRandomPacketConn struct {
	FakePacketConn
}

// ReadFrom generates random metrics and writes them into b.
func (frpc *FakeRandomPacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case <-frpc.closed:
		return 0, nil, closedError()
	default:
	}
	n := copy(b, RandomDatagram())
	return n, FakeAddr, nil
}

// RandomDatagram builds a datagram of random metrics of a random type.
func RandomDatagram() []byte {
	num := rand.Int31n(10000) // Randomize metric name
	buf := new(bytes.Buffer)
	switch rand.Int31n(4) {
	case 0: // Counter
		fmt.Fprintf(buf, "statsd.tester.counter_%d:%f|c\n", num, rand.Float64()*100) // #nosec
	case 1: // Gauge
		fmt.Fprintf(buf, "statsd.tester.gauge_%d:%f|g\n", num, rand.Float64()*100) // #nosec
	case 2: // Timer
		for i := 0; i < 10; i++ {
			fmt.Fprintf(buf, "statsd.tester.timer_%d:%f|ms\n", num, rand.Float64()*100) // #nosec
		}
	case 3: // Set
		for i := 0; i < 10; i++ {
			fmt.Fprintf(buf, "statsd.tester.set_%d:%d|s\n", num, rand.Int31n(9)+1) // #nosec
		}
	default:
		panic(errors.New("unreachable"))
	}
	return buf.Bytes()
}

// Factory is a replacement for net.ListenPacket() that produces instances of FakeRandomPacketConn.
func Factory() (net.PacketConn, error) {
	return &FakeRandomPacketConn{
		FakePacketConn: FakePacketConn{
			closed: make(chan struct{}),
		},
	}, nil
}
