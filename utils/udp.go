// Package utils contains the UDP ingest machinery of the relay.
package utils

import (
	"fmt"
	"net"
	"sync"

	reuseport "github.com/libp2p/go-reuseport"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Secdorks/ipfixcol/metrics"
)

// PacketHandler processes one received datagram. The payload is only
// valid for the duration of the call; the handler forwards or copies it.
type PacketHandler func(payload []byte, src *net.UDPAddr) error

type udpPacket struct {
	src     *net.UDPAddr
	size    int
	payload []byte
}

var packetPool = sync.Pool{
	New: func() any {
		return &udpPacket{
			payload: make([]byte, 9000),
		}
	},
}

// UDPReceiver reads datagrams from one or more reuseport sockets and
// dispatches them to handler workers.
type UDPReceiver struct {
	q        chan bool
	wg       *sync.WaitGroup
	handler  PacketHandler
	dispatch chan *udpPacket
	workers  int

	Errors chan error
}

func NewUDPReceiver(handler PacketHandler) *UDPReceiver {
	return &UDPReceiver{
		q:        make(chan bool),
		wg:       &sync.WaitGroup{},
		handler:  handler,
		dispatch: make(chan *udpPacket, 1000),
		Errors:   make(chan error, 100),
	}
}

func (r *UDPReceiver) error(err error) {
	select {
	case r.Errors <- err:
	default:
	}
}

func (r *UDPReceiver) receive(addr string, port int, started chan bool) error {
	pconn, err := reuseport.ListenPacket("udp", fmt.Sprintf("%s:%d", addr, port))
	close(started)
	if err != nil {
		return err
	}

	q := make(chan bool)
	go func() {
		select {
		case <-q:
		case <-r.q:
		}
		pconn.Close()
	}()
	defer close(q)

	udpconn, ok := pconn.(*net.UDPConn)
	if !ok {
		return fmt.Errorf("not a UDP connection")
	}

	for {
		pkt := packetPool.Get().(*udpPacket)
		pkt.size, pkt.src, err = udpconn.ReadFromUDP(pkt.payload)
		if err != nil {
			packetPool.Put(pkt)
			select {
			case <-r.q:
				return nil
			default:
				return err
			}
		}
		if pkt.size == 0 {
			packetPool.Put(pkt)
			continue
		}

		metrics.MetricTrafficBytes.With(prometheus.Labels{"exporter": pkt.src.IP.String()}).Add(float64(pkt.size))

		select {
		case r.dispatch <- pkt:
		case <-r.q:
			packetPool.Put(pkt)
			return nil
		default:
			// queue full, drop rather than block the socket
			packetPool.Put(pkt)
		}
	}
}

// Workers starts the handler routines.
func (r *UDPReceiver) Workers(workers int) {
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		r.workers++
		go func() {
			defer r.wg.Done()
			for pkt := range r.dispatch {
				if pkt == nil {
					return
				}
				if err := r.handler(pkt.payload[:pkt.size], pkt.src); err != nil {
					r.error(err)
				}
				packetPool.Put(pkt)
			}
		}()
	}
}

// Receivers starts the socket reading routines. All sockets bind the
// same address via reuseport for kernel-level load spreading.
func (r *UDPReceiver) Receivers(sockets int, addr string, port int) {
	for i := 0; i < sockets; i++ {
		r.wg.Add(1)
		started := make(chan bool)
		go func() {
			defer r.wg.Done()
			if err := r.receive(addr, port, started); err != nil {
				r.error(err)
			}
		}()
		<-started
	}
}

// Start runs the socket readers and the handler workers.
func (r *UDPReceiver) Start(sockets, workers int, addr string, port int) {
	r.Workers(workers)
	r.Receivers(sockets, addr, port)
}

func (r *UDPReceiver) Stop() {
	select {
	case <-r.q:
	default:
		close(r.q)
	}
	for i := 0; i < r.workers; i++ {
		r.dispatch <- nil
	}
	r.wg.Wait()
}
