package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/concordiafs/blockvault/internal/volume"
)

// connHandler drives one client connection's line protocol loop. It never
// touches the volume outside of Manager method calls, so it holds no lock
// of its own.
type connHandler struct {
	conn   net.Conn
	mgr    volume.Manager
	cfg    Config
	log    *logrus.Entry
	connID uuid.UUID
}

func newConnHandler(conn net.Conn, mgr volume.Manager, cfg Config, log *logrus.Entry) *connHandler {
	id := uuid.New()
	return &connHandler{
		conn:   conn,
		mgr:    mgr,
		cfg:    cfg,
		connID: id,
		log:    log.WithField("conn", id.String()),
	}
}

func (h *connHandler) run() {
	defer h.conn.Close()
	h.log.WithField("remote", h.conn.RemoteAddr()).Info("client connected")

	reader := bufio.NewReaderSize(h.conn, h.cfg.MaxLineBytes+1)
	writer := bufio.NewWriter(h.conn)

	writeLine(writer, greeting)

	commands := 0
	for {
		if h.cfg.ClientReadTimeout > 0 {
			_ = h.conn.SetReadDeadline(time.Now().Add(h.cfg.ClientReadTimeout))
		}

		line, err := readLine(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.log.Info("client disconnected")
				return
			}
			h.log.WithError(err).Info("client read error, closing")
			writeLine(writer, "ERROR "+err.Error())
			return
		}

		if strings.TrimSpace(line) == "" {
			writeLine(writer, "ERROR empty command")
			continue
		}

		commands++
		if commands > h.cfg.MaxCommandsPerConn {
			writeLine(writer, "ERROR too many commands on this connection")
			return
		}

		quit, err := h.dispatch(writer, line)
		if err != nil {
			h.log.WithError(err).Warn("command failed")
		}
		if quit {
			return
		}
	}
}

// dispatch handles one command line, writing exactly one response line.
// It returns quit=true when the connection should close (QUIT, or a fatal
// I/O error from the volume).
func (h *connHandler) dispatch(w *bufio.Writer, line string) (quit bool, err error) {
	tokens := parseCommand(line)
	if len(tokens) == 0 {
		writeLine(w, "ERROR empty command")
		return false, nil
	}
	verb := strings.ToUpper(tokens[0])

	switch verb {
	case "CREATE":
		if len(tokens) < 2 {
			writeLine(w, "ERROR usage: CREATE <filename>")
			return false, nil
		}
		if err := h.mgr.CreateFile(tokens[1]); err != nil {
			return h.respondErr(w, err)
		}
		writeLine(w, "OK")
		return false, nil

	case "WRITE":
		if len(tokens) < 3 {
			writeLine(w, "ERROR usage: WRITE <filename> <hexpayload>")
			return false, nil
		}
		data, err := decodeHexPayload(tokens[2], h.cfg.MaxPayloadBytes)
		if err != nil {
			writeLine(w, "ERROR "+err.Error())
			return false, nil
		}
		if err := h.mgr.WriteFile(tokens[1], data); err != nil {
			return h.respondErr(w, err)
		}
		writeLine(w, "OK")
		return false, nil

	case "READ":
		if len(tokens) < 2 {
			writeLine(w, "ERROR usage: READ <filename>")
			return false, nil
		}
		data, err := h.mgr.ReadFile(tokens[1])
		if err != nil {
			return h.respondErr(w, err)
		}
		writeLine(w, "OK "+encodeHexPayload(data))
		return false, nil

	case "DELETE":
		if len(tokens) < 2 {
			writeLine(w, "ERROR usage: DELETE <filename>")
			return false, nil
		}
		if err := h.mgr.DeleteFile(tokens[1]); err != nil {
			return h.respondErr(w, err)
		}
		writeLine(w, "OK")
		return false, nil

	case "LIST":
		names := h.mgr.ListFiles()
		writeLine(w, "OK "+strings.Join(names, ","))
		return false, nil

	case "HELP":
		writeLine(w, "OK "+helpText)
		return false, nil

	case "QUIT":
		writeLine(w, "OK bye")
		return true, nil

	default:
		writeLine(w, "ERROR unknown command")
		return false, nil
	}
}

// respondErr writes the ERROR line for a volume error and decides whether
// the connection must close: only an I/O failure on the volume closes the
// connection; every other kind keeps it open.
func (h *connHandler) respondErr(w *bufio.Writer, err error) (quit bool, retErr error) {
	writeLine(w, "ERROR "+err.Error())
	var verr *volume.Error
	if errors.As(err, &verr) && verr.Kind == volume.KindIO {
		return true, err
	}
	return false, err
}

func writeLine(w *bufio.Writer, s string) {
	_, _ = w.WriteString(s)
	_, _ = w.WriteString("\n")
	_ = w.Flush()
}

// readLine reads up to the next '\n', stripping a trailing '\r'. The
// reader's buffer size bounds the maximum line length: a line that never
// terminates within that bound is reported as a "line too long" error. Returns
// io.EOF when the peer closed the connection with no more data.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", errors.New("line too long")
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimRight(string(line), "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}
