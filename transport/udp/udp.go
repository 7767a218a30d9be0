// Package udp forwards rewritten IPFIX messages to a downstream collector
// over UDP, one message per datagram.
package udp

import (
	"flag"
	"net"
	"strconv"
	"sync"

	"github.com/Secdorks/ipfixcol/transport"

	log "github.com/sirupsen/logrus"
)

type UdpDriver struct {
	udpDestination string
	udpPort        int
	udpSource      string

	conn *net.UDPConn
	lock *sync.Mutex
}

func (d *UdpDriver) Prepare() error {
	flag.StringVar(&d.udpDestination, "transport.udp.dst", "", "Udp remote IP destination")
	flag.IntVar(&d.udpPort, "transport.udp.port", 4739, "Udp remote port")
	flag.StringVar(&d.udpSource, "transport.udp.src", "", "Udp local source IP address to use")
	return nil
}

func (d *UdpDriver) Init() error {
	var localAddr *net.UDPAddr
	if d.udpSource != "" {
		var err error
		localAddr, err = net.ResolveUDPAddr("udp", d.udpSource+":0")
		if err != nil {
			log.Errorf("Unable to resolve local IP addr %s", d.udpSource)
			return err
		}
	}

	remote := net.JoinHostPort(d.udpDestination, strconv.Itoa(d.udpPort))
	remoteAddr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		log.Errorf("Unable to resolve remote IP addr %s", remote)
		return err
	}

	d.conn, err = net.DialUDP("udp", localAddr, remoteAddr)
	if err != nil {
		log.Errorf("Unable to create UDP socket %v", err)
		return err
	}
	return nil
}

func (d *UdpDriver) Send(key, data []byte) error {
	d.lock.Lock()
	_, err := d.conn.Write(data)
	d.lock.Unlock()
	return err
}

func (d *UdpDriver) Close() error {
	return d.conn.Close()
}

func init() {
	d := &UdpDriver{
		lock: &sync.Mutex{},
	}
	transport.RegisterTransportDriver("udp", d)
}
