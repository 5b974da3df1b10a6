package server

import (
	"bufio"
	"net"
	"path"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/concordiafs/blockvault/internal/volume"
)

func testManager(t *testing.T) volume.Manager {
	t.Helper()
	p := volume.Params{BlockSize: 64, MaxFiles: 8, MaxBlocks: 64}
	p.TotalBytes = int(p.Needed())
	img := path.Join(t.TempDir(), "vol.img")
	m, err := volume.Open(img, p.TotalBytes, p.BlockSize, p.MaxFiles, p.MaxBlocks, logrus.NewEntry(logrus.StandardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testConfig() Config {
	return Config{
		MaxWorkers:         4,
		QueueCapacity:      4,
		MaxLineBytes:       4096,
		MaxPayloadBytes:    65535,
		MaxCommandsPerConn: 1000,
		ClientReadTimeout:  5 * time.Second,
	}
}

// runHandlerOnPipe drives a connHandler against one end of an in-memory
// pipe and returns the other end wrapped for line-based reading.
func runHandlerOnPipe(t *testing.T, mgr volume.Manager) (*bufio.Reader, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	h := newConnHandler(server, mgr, testConfig(), logrus.NewEntry(logrus.StandardLogger()))
	go h.run()
	return bufio.NewReader(client), client
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func readLineFromClient(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line[:len(line)-1]
}

func TestHandlerGreetingAndHelp(t *testing.T) {
	r, conn := runHandlerOnPipe(t, testManager(t))
	defer conn.Close()

	require.Equal(t, greeting, readLineFromClient(t, r))

	sendLine(t, conn, "HELP")
	require.Equal(t, "OK "+helpText, readLineFromClient(t, r))
}

func TestHandlerCreateWriteReadDeleteList(t *testing.T) {
	r, conn := runHandlerOnPipe(t, testManager(t))
	defer conn.Close()
	readLineFromClient(t, r) // greeting

	sendLine(t, conn, "CREATE a.txt")
	require.Equal(t, "OK", readLineFromClient(t, r))

	sendLine(t, conn, "WRITE a.txt deadbeef")
	require.Equal(t, "OK", readLineFromClient(t, r))

	sendLine(t, conn, "READ a.txt")
	require.Equal(t, "OK deadbeef", readLineFromClient(t, r))

	sendLine(t, conn, "LIST")
	require.Equal(t, "OK a.txt", readLineFromClient(t, r))

	sendLine(t, conn, "DELETE a.txt")
	require.Equal(t, "OK", readLineFromClient(t, r))

	sendLine(t, conn, "LIST")
	require.Equal(t, "OK ", readLineFromClient(t, r))
}

func TestHandlerUnknownAndUsageErrors(t *testing.T) {
	r, conn := runHandlerOnPipe(t, testManager(t))
	defer conn.Close()
	readLineFromClient(t, r)

	sendLine(t, conn, "BOGUS")
	require.Equal(t, "ERROR unknown command", readLineFromClient(t, r))

	sendLine(t, conn, "CREATE")
	require.Equal(t, "ERROR usage: CREATE <filename>", readLineFromClient(t, r))

	sendLine(t, conn, "")
	require.Equal(t, "ERROR empty command", readLineFromClient(t, r))
}

func TestHandlerNotFoundKeepsConnectionOpen(t *testing.T) {
	r, conn := runHandlerOnPipe(t, testManager(t))
	defer conn.Close()
	readLineFromClient(t, r)

	sendLine(t, conn, "READ nope.txt")
	require.Contains(t, readLineFromClient(t, r), "NotFound")

	sendLine(t, conn, "LIST")
	require.Equal(t, "OK ", readLineFromClient(t, r))
}

func TestHandlerQuitClosesConnection(t *testing.T) {
	r, conn := runHandlerOnPipe(t, testManager(t))
	defer conn.Close()
	readLineFromClient(t, r)

	sendLine(t, conn, "QUIT")
	require.Equal(t, "OK bye", readLineFromClient(t, r))

	_, err := r.ReadString('\n')
	require.Error(t, err)
}
