package dispatch

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/wtvlabs/bmdcastd/internal/gpusurface"
	"github.com/wtvlabs/bmdcastd/internal/logger"
	"github.com/wtvlabs/bmdcastd/internal/peerlist"
	"github.com/wtvlabs/bmdcastd/internal/proto"
)

func testCore(t *testing.T) (*Core, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bmd_test.sock")
	fd, err := bindListener(path)
	require.NoError(t, err)
	termRead, termWrite, err := installTermPipe()
	require.NoError(t, err)

	c := &Core{
		cfg:        Config{SocketPath: path},
		log:        logger.WithComponent(logger.Logger(), "dispatch_test"),
		listenerFD: fd,
		termReadFD: termRead,
		termWrite:  termWrite,
		exportedFD: -1,
		peers:      &peerlist.List{},
	}
	t.Cleanup(func() {
		_ = unix.Close(fd)
		_ = unix.Close(termRead)
		_ = unix.Close(termWrite)
		_ = os.Remove(path)
	})
	return c, path
}

func TestBindListenerCreatesSocketWithWorldPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bmd.sock")
	fd, err := bindListener(path)
	require.NoError(t, err)
	defer unix.Close(fd)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o666), info.Mode().Perm())

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	conn.Close()
}

func TestBindListenerUnlinksStaleSocketFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bmd.sock")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	fd, err := bindListener(path)
	require.NoError(t, err)
	defer unix.Close(fd)
}

func TestBuildPollSetIncludesListenerAndTermPipe(t *testing.T) {
	c, _ := testCore(t)
	fds, peerByFD := c.buildPollSet()

	require.Len(t, fds, 2)
	require.Empty(t, peerByFD)

	var sawListener, sawTerm bool
	for _, pfd := range fds {
		switch int(pfd.Fd) {
		case c.listenerFD:
			sawListener = true
			require.Equal(t, int16(unix.POLLIN), pfd.Events)
		case c.termReadFD:
			sawTerm = true
		}
	}
	require.True(t, sawListener)
	require.True(t, sawTerm)
}

func TestBuildPollSetAddsPOLLOUTForPeersWithOutboundData(t *testing.T) {
	c, _ := testCore(t)
	p := peerlist.NewPeer(99)
	p.Enqueue(&peerlist.BytesMessage{Buf: []byte{1, 2, 3}})
	c.peers.PushBack(p)

	fds, peerByFD := c.buildPollSet()
	require.Len(t, fds, 3)
	require.Same(t, p, peerByFD[99])

	found := false
	for _, pfd := range fds {
		if int(pfd.Fd) == 99 {
			found = true
			require.Equal(t, int16(unix.POLLIN|unix.POLLOUT), pfd.Events)
		}
	}
	require.True(t, found)
}

// TestAcceptOneQueuesVersionPDU exercises spec.md §4.7 step 3's connection
// handshake: a fresh peer's first queued outbound message is the VERSION
// PDU, byte for byte.
func TestAcceptOneQueuesVersionPDU(t *testing.T) {
	c, path := testCore(t)
	c.isRunning = true // skip the real capture.Create path, no hardware here

	client, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer client.Close()

	// Give the kernel a moment to mark the listener readable; Accept4 is
	// non-blocking so a stale call would return EAGAIN, not a flake.
	for i := 0; i < 100 && c.peers.Len() == 0; i++ {
		c.acceptOne()
	}

	require.Equal(t, 1, c.peers.Len())
	peer := c.peers.Head()
	require.True(t, peer.HasOutbound())
	msg, ok := peer.Outbound[0].(*peerlist.BytesMessage)
	require.True(t, ok)
	require.Equal(t, proto.EncodeVersion(0, 1, 64), msg.Buf)
}

func TestRemovePeerStopsCaptureWhenListEmpties(t *testing.T) {
	c, _ := testCore(t)
	c.isRunning = true

	sockFD, peerFD := socketpairOrSkip(t)
	defer unix.Close(sockFD)

	peer := peerlist.NewPeer(peerFD)
	c.peers.PushBack(peer)

	c.removePeer(peer)
	require.Equal(t, 0, c.peers.Len())
	require.False(t, c.isRunning)
}

// TestHandleRequestVideoFrameUsesStoredTimestamp covers the immediate
// REQUEST_VIDEO_FRAME reply path, taken when a frame newer than the peer's
// last one is already exported: the VIDEO PDU's ts must be that exported
// frame's real capture time, not a placeholder (spec.md's
// DaemonState keeps the exported fd's capture-time alongside its
// geometry for exactly this reply).
func TestHandleRequestVideoFrameUsesStoredTimestamp(t *testing.T) {
	dev, err := gpusurface.OpenDevice(gpusurface.DefaultDevicePath)
	if err != nil {
		t.Skipf("DRM render node unavailable: %v", err)
	}
	defer dev.Close()

	surf, err := gpusurface.Create(dev, 64, 64)
	if err != nil {
		t.Skipf("DRM dumb buffer unavailable: %v", err)
	}
	defer surf.Destroy()

	fd, err := surf.ExportDMABuf()
	require.NoError(t, err)
	defer unix.Close(fd)

	c, _ := testCore(t)
	c.surface = surf
	c.exportedFD = fd
	c.exportedTimestampMs = 123456
	c.videoFrameCount = 3

	sockFD, peerFD := socketpairOrSkip(t)
	defer unix.Close(sockFD)
	peer := peerlist.NewPeer(peerFD)
	peer.LastFrame = 0

	c.handleRequestVideoFrame(peer)

	require.True(t, peer.HasOutbound())
	header, ok := peer.Outbound[0].(*peerlist.BytesMessage)
	require.True(t, ok)
	decoded, err := proto.DecodeVideo(header.Buf)
	require.NoError(t, err)
	require.Equal(t, uint32(123456), decoded.Timestamp)
	require.Equal(t, uint64(3), peer.LastFrame)

	fdMsg, ok := peer.Outbound[1].(*peerlist.FDMessage)
	require.True(t, ok)
	unix.Close(fdMsg.FD)
}

func socketpairOrSkip(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Skipf("socketpair unavailable: %v", err)
	}
	return fds[0], fds[1]
}
