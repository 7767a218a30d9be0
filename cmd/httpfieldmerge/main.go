package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/Secdorks/ipfixcol/httpfieldmerge"
	"github.com/Secdorks/ipfixcol/mapper"
	"github.com/Secdorks/ipfixcol/state"
	"github.com/Secdorks/ipfixcol/utils"

	// import various transports
	"github.com/Secdorks/ipfixcol/transport"
	_ "github.com/Secdorks/ipfixcol/transport/file"
	_ "github.com/Secdorks/ipfixcol/transport/kafka"
	_ "github.com/Secdorks/ipfixcol/transport/udp"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	version    = ""
	buildinfos = ""
	AppVersion = "httpfieldmerge " + version + " " + buildinfos

	ListenAddress = flag.String("listen", "udp://:4739", "Listen address (udp://host:port or pipe://)")
	Workers       = flag.Int("workers", 1, "Number of workers per socket")
	Sockets       = flag.Int("sockets", 1, "Number of sockets")

	LogLevel = flag.String("loglevel", "info", "Log level")
	LogFmt   = flag.String("logfmt", "normal", "Log formatter")

	Transport = flag.String("transport", "file", fmt.Sprintf("Choose the transport (available: %s)", strings.Join(transport.GetTransports(), ", ")))

	MetricsAddr = flag.String("metrics.addr", ":8081", "Metrics address")
	MetricsPath = flag.String("metrics.path", "/metrics", "Metrics path")

	MappingFile = flag.String("mapping", "", "Custom vendor mapping file (YAML, replaces the built-in tables)")

	Version = flag.Bool("v", false, "Print version")
)

func httpServer() {
	http.Handle(*MetricsPath, promhttp.Handler())
	log.Fatal(http.ListenAndServe(*MetricsAddr, nil))
}

// sessions hands out one processor per exporter, each owning its verdict
// store scoped to that exporter's session key.
type sessions struct {
	lock    sync.Mutex
	procs   map[string]*httpfieldmerge.Processor
	vendors []mapper.Vendor
}

func (s *sessions) get(key string) (*httpfieldmerge.Processor, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if p, ok := s.procs[key]; ok {
		return p, nil
	}
	p, err := httpfieldmerge.NewProcessor(key, s.vendors, state.CreateVerdictSystem(key))
	if err != nil {
		return nil, err
	}
	s.procs[key] = p
	return p, nil
}

func loadVendors(path string) ([]mapper.Vendor, error) {
	if path == "" {
		return mapper.DefaultVendors(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	config, err := mapper.LoadMapping(f)
	if err != nil {
		return nil, err
	}
	return config.Compile()
}

// pipeLoop reads a stream of IPFIX messages from stdin, using the length
// field of each message header to delimit them, and forwards every
// rewritten message downstream.
func pipeLoop(s *sessions, transporter transport.TransportInterface) error {
	proc, err := s.get("pipe")
	if err != nil {
		return err
	}
	rdr := bufio.NewReader(os.Stdin)
	var header [4]byte
	for {
		if _, err := io.ReadFull(rdr, header[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		length := binary.BigEndian.Uint16(header[2:])
		if length < 4 {
			return fmt.Errorf("message length %d out of range", length)
		}
		msg := make([]byte, length)
		copy(msg, header[:])
		if _, err := io.ReadFull(rdr, msg[4:]); err != nil {
			return err
		}
		if err := proc.ProcessMessage(msg); err != nil {
			log.WithError(err).Warn("error processing message")
		}
		if err := transporter.Send([]byte("pipe"), msg); err != nil {
			return err
		}
	}
}

func main() {
	flag.Parse()

	if *Version {
		fmt.Println(AppVersion)
		os.Exit(0)
	}

	lvl, _ := log.ParseLevel(*LogLevel)
	log.SetLevel(lvl)
	switch *LogFmt {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	}

	vendors, err := loadVendors(*MappingFile)
	if err != nil {
		log.WithError(err).Fatal("error loading vendor mapping")
	}

	if err := state.InitVerdicts(); err != nil {
		log.WithError(err).Fatal("error initializing verdict state")
	}
	defer func() {
		if err := state.CloseVerdicts(); err != nil {
			log.WithError(err).Error("error closing verdict state")
		}
	}()

	transporter, err := transport.FindTransport(*Transport)
	if err != nil {
		log.WithError(err).Fatal("error transporter")
	}
	defer transporter.Close()

	s := &sessions{
		procs:   make(map[string]*httpfieldmerge.Processor),
		vendors: vendors,
	}

	go httpServer()

	listenAddrUrl, err := url.Parse(*ListenAddress)
	if err != nil {
		log.WithError(err).Fatal("error parsing listen address")
	}

	log.WithFields(log.Fields{
		"listen":    *ListenAddress,
		"transport": *Transport,
	}).Info("starting httpfieldmerge")

	switch listenAddrUrl.Scheme {
	case "pipe":
		if err := pipeLoop(s, transporter); err != nil {
			log.WithError(err).Fatal("error in pipe loop")
		}
	case "udp":
		hostname := listenAddrUrl.Hostname()
		port, err := strconv.ParseUint(listenAddrUrl.Port(), 10, 16)
		if err != nil {
			log.WithError(err).Fatal("error parsing listen port")
		}

		receiver := utils.NewUDPReceiver(func(payload []byte, src *net.UDPAddr) error {
			key := src.IP.String()
			proc, err := s.get(key)
			if err != nil {
				return err
			}
			if err := proc.ProcessMessage(payload); err != nil {
				// structural errors are best effort: the message is
				// still forwarded with whatever was rewritten
				log.WithFields(log.Fields{
					"exporter": key,
				}).WithError(err).Debug("error processing message")
			}
			return transporter.Send([]byte(key), payload)
		})
		numWorkers := *Workers * *Sockets
		receiver.Start(*Sockets, numWorkers, hostname, int(port))
		defer receiver.Stop()

		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		for {
			select {
			case <-c:
				return
			case err := <-receiver.Errors:
				log.WithError(err).Error("receiver error")
			}
		}
	default:
		log.Fatalf("scheme %s does not exist", listenAddrUrl.Scheme)
	}
}
