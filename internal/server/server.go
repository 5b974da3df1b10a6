package server

import (
	"bufio"
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/concordiafs/blockvault/internal/volume"
)

// Server is the line-oriented TCP front-end over a volume.Manager. It
// accepts connections on a listener and dispatches each to a bounded
// worker pool: a fixed number of goroutines pull connections off a
// buffered queue, which is the idiomatic Go rendering of the reference
// server's ThreadPoolExecutor + ArrayBlockingQueue + AbortPolicy.
type Server struct {
	cfg Config
	mgr volume.Manager
	log *logrus.Entry
}

func New(cfg Config, mgr volume.Manager, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{cfg: cfg, mgr: mgr, log: log}
}

// Serve listens on cfg.Addr and runs until ctx is canceled or a fatal
// accept error occurs. It shuts down the listener and lets in-flight
// workers drain before returning.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.log.WithField("addr", ln.Addr().String()).Info("listening")

	queue := make(chan net.Conn, s.cfg.QueueCapacity)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	for i := 0; i < s.cfg.MaxWorkers; i++ {
		g.Go(func() error {
			for conn := range queue {
				newConnHandler(conn, s.mgr, s.cfg, s.log).run()
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(queue)
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
					return err
				}
			}

			select {
			case queue <- conn:
			default:
				respondBusy(conn)
			}
		}
	})

	return g.Wait()
}

func respondBusy(conn net.Conn) {
	defer conn.Close()
	w := bufio.NewWriter(conn)
	writeLine(w, "ERROR server busy, try again later")
}
