// Package dispatch implements the single-threaded event loop (C7): the
// dispatch core multiplexes the listening socket, the termination signal,
// the capture-thread notification pipe, and every connected peer socket
// via a single blocking poll(2) call per iteration, exactly as spec.md
// §4.7 describes. No goroutine-per-connection, no channels on this path —
// only the two independent capture backends (internal/capture) and the
// loop thread run concurrently, and they communicate solely through
// internal/avslot's mutex and self-pipe.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/wtvlabs/bmdcastd/internal/avslot"
	"github.com/wtvlabs/bmdcastd/internal/bmderrors"
	"github.com/wtvlabs/bmdcastd/internal/bufpool"
	"github.com/wtvlabs/bmdcastd/internal/capture"
	"github.com/wtvlabs/bmdcastd/internal/colorconv"
	"github.com/wtvlabs/bmdcastd/internal/gpusurface"
	"github.com/wtvlabs/bmdcastd/internal/logger"
	"github.com/wtvlabs/bmdcastd/internal/peerlist"
	"github.com/wtvlabs/bmdcastd/internal/proto"
)

// Config configures one Core instance.
type Config struct {
	SocketPath string
	ModeIndex  int
	DRMDevice  string
}

// Core owns every piece of DaemonState (spec.md §3): the listener, the GPU
// surface and its exported fd, the peer list, and the capture handle. It
// is touched only by the loop thread; no locking is needed here, unlike
// AVSlot which crosses the capture-thread boundary.
type Core struct {
	cfg Config
	log *charmlog.Logger

	listenerFD int
	termReadFD int
	termWrite  int

	gpuDev  *gpusurface.Device
	surface *gpusurface.Surface

	exportedFD          int
	exportedTimestampMs int64
	videoFrameCount     uint64

	slot          *avslot.Slot
	captureDriver capture.Driver
	isRunning     bool

	peers *peerlist.List
}

// New constructs a Core with its UDS bound and listening, its termination
// self-pipe installed, and its GPU device opened, per spec.md §4.7 startup.
func New(cfg Config) (*Core, error) {
	logger.Init()

	gpuDev, err := gpusurface.OpenDevice(cfg.DRMDevice)
	if err != nil {
		return nil, err
	}

	listenerFD, err := bindListener(cfg.SocketPath)
	if err != nil {
		_ = gpuDev.Close()
		return nil, err
	}

	termRead, termWrite, err := installTermPipe()
	if err != nil {
		_ = gpuDev.Close()
		_ = unix.Close(listenerFD)
		return nil, err
	}

	return &Core{
		cfg:        cfg,
		log:        logger.WithComponent(logger.Logger(), "dispatch"),
		listenerFD: listenerFD,
		termReadFD: termRead,
		termWrite:  termWrite,
		gpuDev:     gpuDev,
		exportedFD: -1,
		peers:      &peerlist.List{},
	}, nil
}

// bindListener unlinks any stale socket at path, binds, chmods 0666, and
// listens with a backlog of 2 (spec.md §4.7).
func bindListener(path string) (int, error) {
	_ = unix.Unlink(path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, bmderrors.New(bmderrors.Create, "dispatch.bind_listener", err)
	}
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return -1, bmderrors.New(bmderrors.Create, "dispatch.bind_listener", err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		_ = unix.Close(fd)
		return -1, bmderrors.New(bmderrors.Create, "dispatch.bind_listener", err)
	}
	if err := unix.Listen(fd, 2); err != nil {
		_ = unix.Close(fd)
		return -1, bmderrors.New(bmderrors.Create, "dispatch.bind_listener", err)
	}
	return fd, nil
}

// installTermPipe opens the termination self-pipe and installs handlers
// for SIGINT and SIGTERM that write to it; SIGPIPE is ignored.
func installTermPipe() (readFD, writeFD int, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, bmderrors.New(bmderrors.Pipe, "dispatch.install_term_pipe", err)
	}

	signal.Ignore(syscall.SIGPIPE)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		var tok [4]byte
		_, _ = unix.Write(p[1], tok[:])
	}()

	return p[0], p[1], nil
}

// SocketPath returns the bound UDS path.
func (c *Core) SocketPath() string { return c.cfg.SocketPath }

// Run executes the event loop until the term pipe wakes (graceful
// shutdown) or ctx is cancelled.
func (c *Core) Run(ctx context.Context) error {
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fds, peerByFD := c.buildPollSet()
		n, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return bmderrors.New(bmderrors.NotReady, "dispatch.run", err)
		}
		if n == 0 {
			continue
		}

		for _, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			switch int(pfd.Fd) {
			case c.termReadFD:
				if pfd.Revents&unix.POLLIN != 0 {
					return nil
				}
			case c.listenerFD:
				if pfd.Revents&unix.POLLIN != 0 {
					c.acceptOne()
				}
			case c.slotSignalFD():
				if pfd.Revents&unix.POLLIN != 0 {
					c.drainAVSignal()
				}
			default:
				if peer, ok := peerByFD[int(pfd.Fd)]; ok {
					c.servicePeer(peer, pfd.Revents)
				}
			}
		}
	}
}

func (c *Core) slotSignalFD() int {
	if c.slot == nil {
		return -1
	}
	return c.slot.SignalFD()
}

// buildPollSet constructs this iteration's readable/writable fd set:
// {listener, term_signal_pipe, avslot.signal_pipe?, every peer.sck}.
func (c *Core) buildPollSet() ([]unix.PollFd, map[int]*peerlist.Peer) {
	fds := []unix.PollFd{
		{Fd: int32(c.listenerFD), Events: unix.POLLIN},
		{Fd: int32(c.termReadFD), Events: unix.POLLIN},
	}
	if c.slot != nil {
		fds = append(fds, unix.PollFd{Fd: int32(c.slot.SignalFD()), Events: unix.POLLIN})
	}

	peerByFD := make(map[int]*peerlist.Peer)
	c.peers.Each(func(p *peerlist.Peer) {
		events := int16(unix.POLLIN)
		if p.HasOutbound() {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(p.FD), Events: events})
		peerByFD[p.FD] = p
	})
	return fds, peerByFD
}

// acceptOne accepts a pending connection, queues VERSION, and lazily
// starts capture on the 0->1 peer transition (spec.md §4.7 step 3).
func (c *Core) acceptOne() {
	fd, _, err := unix.Accept4(c.listenerFD, unix.SOCK_NONBLOCK)
	if err != nil {
		if err != unix.EAGAIN {
			c.log.Warn("accept failed", "error", err)
		}
		return
	}

	peer := peerlist.NewPeer(fd)
	peer.Enqueue(&peerlist.BytesMessage{Buf: proto.EncodeVersion(0, 1, 64)})
	c.peers.PushBack(peer)
	c.log.Info("peer connected", "peer_id", peer.ID)

	if c.peers.Len() == 1 && !c.isRunning {
		if err := c.startCapture(); err != nil {
			c.log.Warn("lazy capture start failed", "error", err)
		}
	}
}

func (c *Core) startCapture() error {
	slot, err := avslot.New()
	if err != nil {
		return err
	}
	driver, err := capture.Create(c.cfg.ModeIndex, slot)
	if err != nil {
		_ = slot.Close()
		return err
	}
	if err := driver.Start(context.Background()); err != nil {
		_ = driver.Delete()
		_ = slot.Close()
		return err
	}
	c.slot = slot
	c.captureDriver = driver
	c.isRunning = true
	return nil
}

func (c *Core) stopCapture() {
	if !c.isRunning {
		return
	}
	if c.captureDriver != nil {
		if err := c.captureDriver.Stop(); err != nil {
			c.log.Warn("capture stop failed", "error", err)
		}
		if err := c.captureDriver.Delete(); err != nil {
			c.log.Warn("capture delete failed", "error", err)
		}
		c.captureDriver = nil
	}
	if c.slot != nil {
		_ = c.slot.Close()
		c.slot = nil
	}
	c.isRunning = false
}

// drainAVSignal reads one token off the AV self-pipe, consumes AVSlot, and
// fans out AUDIO/VIDEO PDUs (spec.md §4.7 step 2).
func (c *Core) drainAVSignal() {
	if c.slot == nil {
		return
	}
	c.slot.DrainSignal()
	video, audio := c.slot.Consume()

	if audio != nil {
		pdu := proto.EncodeAudio(uint32(audio.TimestampMs), uint32(audio.Channels), audio.Data)
		c.peers.Each(func(p *peerlist.Peer) {
			if p.SubscribedAudio {
				p.Enqueue(&peerlist.BytesMessage{Buf: pdu})
			}
		})
	}

	if video != nil {
		if err := c.uploadAndExport(video); err != nil {
			c.log.Warn("video upload/export failed, dropping frame", "error", err)
			return
		}
		header := proto.EncodeVideoHeader(uint32(video.TimestampMs), proto.VideoGeometry{
			Width:  uint32(video.Width),
			Height: uint32(video.Height),
			Stride: c.surface.Geometry().Stride,
			Size:   c.surface.Geometry().Size,
			Bpp:    c.surface.Geometry().Bpp,
		})
		c.peers.Each(func(p *peerlist.Peer) {
			if !p.WantsNextVideo {
				return
			}
			dupFD, err := unix.Dup(c.exportedFD)
			if err != nil {
				c.log.Warn("dup exported fd failed", "error", err, "peer_id", p.ID)
				return
			}
			p.Enqueue(&peerlist.BytesMessage{Buf: header})
			p.Enqueue(&peerlist.FDMessage{FD: dupFD})
			p.LastFrame = c.videoFrameCount
			p.WantsNextVideo = false
		})
	}
}

// uploadAndExport implements C4's surface management (spec.md §4.4): it
// (re)creates the GPU surface on a dimension change, converts the captured
// YUY2 frame to NV12, uploads both planes, and exports a fresh DMA-BUF fd,
// closing the previously exported one.
func (c *Core) uploadAndExport(video *avslot.VideoOut) error {
	if c.surface == nil || c.surface.Geometry().Width != uint32(video.Width) || c.surface.Geometry().Height != uint32(video.Height) {
		if c.surface != nil {
			_ = c.surface.Destroy()
		}
		surf, err := gpusurface.Create(c.gpuDev, uint32(video.Width), uint32(video.Height))
		if err != nil {
			return bmderrors.New(bmderrors.Create, "dispatch.upload_and_export", err)
		}
		c.surface = surf
		c.videoFrameCount = 0
	}

	yStride := colorconv.YUY2Stride(video.Width)
	nv12Y := bufpool.Get(video.Width * video.Height)
	defer bufpool.Put(nv12Y)
	nv12UV := bufpool.Get(video.Width * (video.Height / 2))
	defer bufpool.Put(nv12UV)

	planes := colorconv.NV12Planes{
		Y: nv12Y, YStride: video.Width,
		UV: nv12UV, UVStride: video.Width,
	}
	if err := colorconv.ConvertYUY2ToNV12(video.Data, yStride, video.Width, video.Height, planes); err != nil {
		return err
	}

	c.surface.WriteY(planes.Y, planes.YStride)
	c.surface.WriteUV(planes.UV, planes.UVStride)

	fd, err := c.surface.ExportDMABuf()
	if err != nil {
		return err
	}
	if c.exportedFD >= 0 {
		_ = unix.Close(c.exportedFD)
	}
	c.exportedFD = fd
	c.exportedTimestampMs = video.TimestampMs
	c.videoFrameCount++
	return nil
}

// servicePeer drives one peer's read and write halves for this wake-up
// (spec.md §4.7 step 4): reads advance the inbound state machine and
// dispatch completed PDUs, writes drain the outbound FIFO. Any I/O or
// protocol error removes the peer.
func (c *Core) servicePeer(p *peerlist.Peer, revents int16) {
	if revents&(unix.POLLIN) != 0 {
		if err := c.readPeer(p); err != nil {
			c.removePeer(p)
			return
		}
	}
	if revents&unix.POLLOUT != 0 {
		if err := c.writePeer(p); err != nil {
			c.removePeer(p)
			return
		}
	}
	if revents&(unix.POLLHUP|unix.POLLERR) != 0 {
		c.removePeer(p)
	}
}

func (c *Core) readPeer(p *peerlist.Peer) error {
	target := p.ReadTarget()
	if len(target) == 0 {
		return nil
	}
	n, err := unix.Read(p.FD, target)
	if err != nil {
		if err == unix.EAGAIN {
			return nil
		}
		return bmderrors.New(bmderrors.Fd, "dispatch.read_peer", err)
	}
	if n == 0 {
		return bmderrors.New(bmderrors.PeerRemoved, "dispatch.read_peer", nil)
	}
	if err := p.FeedReadBytes(n); err != nil {
		return err
	}

	if p.HeaderReady() {
		if err := p.AdvanceAfterHeader(decodeHeaderTriple); err != nil {
			return err
		}
	}
	if p.PayloadReady() {
		c.dispatchPDU(p)
		p.ResetForNextHeader()
	}
	return nil
}

func decodeHeaderTriple(buf []byte) (uint32, uint32, error) {
	h, err := proto.DecodeHeader(buf)
	if err != nil {
		return 0, 0, err
	}
	return uint32(h.Code), h.Length, nil
}

// dispatchPDU handles a fully-buffered PDU per C6's semantics (spec.md
// §4.6). Unknown codes are ignored; their length was already honored for
// framing by the time we get here.
func (c *Core) dispatchPDU(p *peerlist.Peer) {
	switch proto.Code(p.PDUCode()) {
	case proto.SubscribeAudio:
		enabled, err := proto.DecodeSubscribeAudio(p.PayloadBytes()[proto.HeaderLen:])
		if err != nil {
			return
		}
		p.SubscribedAudio = enabled
	case proto.RequestVideoFrame:
		c.handleRequestVideoFrame(p)
	}
}

// handleRequestVideoFrame implements C6's REQUEST_VIDEO_FRAME semantics:
// if no fresh frame is available, arm wants_next_video; else enqueue VIDEO
// + fd now and record last_frame.
func (c *Core) handleRequestVideoFrame(p *peerlist.Peer) {
	if c.exportedFD < 0 || p.LastFrame == c.videoFrameCount {
		p.WantsNextVideo = true
		return
	}
	geom := c.surface.Geometry()
	header := proto.EncodeVideoHeader(uint32(c.exportedTimestampMs), proto.VideoGeometry{
		Width: geom.Width, Height: geom.Height, Stride: geom.Stride, Size: geom.Size, Bpp: geom.Bpp,
	})
	dupFD, err := unix.Dup(c.exportedFD)
	if err != nil {
		c.log.Warn("dup exported fd failed", "error", err, "peer_id", p.ID)
		return
	}
	p.Enqueue(&peerlist.BytesMessage{Buf: header})
	p.Enqueue(&peerlist.FDMessage{FD: dupFD})
	p.LastFrame = c.videoFrameCount
}

func (c *Core) writePeer(p *peerlist.Peer) error {
	for p.HasOutbound() {
		msg := p.Outbound[0]
		switch m := msg.(type) {
		case *peerlist.BytesMessage:
			n, err := unix.Write(p.FD, m.Buf[m.Start:])
			if err != nil {
				if err == unix.EAGAIN {
					return nil
				}
				return bmderrors.New(bmderrors.Fd, "dispatch.write_peer", err)
			}
			m.Start += n
			if !m.Done() {
				return nil
			}
			p.PopFront()
		case *peerlist.FDMessage:
			if err := sendFDMessage(p.FD, m.FD); err != nil {
				if err == unix.EAGAIN {
					return nil
				}
				_ = unix.Close(m.FD)
				return bmderrors.New(bmderrors.Fd, "dispatch.write_peer", err)
			}
			_ = unix.Close(m.FD)
			p.PopFront()
		}
	}
	return nil
}

// sendFDMessage sends the VIDEO PDU's paired fd message: a sendmsg
// carrying the 4-byte "int\0" in-band payload and one SCM_RIGHTS ancillary
// record with fd (spec.md §4.6, §9).
func sendFDMessage(sockFD, fd int) error {
	rights := unix.UnixRights(fd)
	return unix.Sendmsg(sockFD, proto.VideoFDInbandPayload[:], rights, nil, 0)
}

func (c *Core) removePeer(p *peerlist.Peer) {
	c.log.Info("peer removed", "peer_id", p.ID)
	for _, m := range p.Outbound {
		if fm, ok := m.(*peerlist.FDMessage); ok {
			_ = unix.Close(fm.FD)
		}
	}
	_ = unix.Close(p.FD)
	c.peers.Remove(p)
	if c.peers.Len() == 0 && c.isRunning {
		c.stopCapture()
	}
}

func (c *Core) shutdown() {
	c.log.Info("shutting down")
	c.stopCapture()

	c.peers.Each(func(p *peerlist.Peer) {
		for _, m := range p.Outbound {
			if fm, ok := m.(*peerlist.FDMessage); ok {
				_ = unix.Close(fm.FD)
			}
		}
		_ = unix.Close(p.FD)
	})

	if c.exportedFD >= 0 {
		_ = unix.Close(c.exportedFD)
	}
	if c.surface != nil {
		_ = c.surface.Destroy()
	}
	_ = c.gpuDev.Close()
	_ = unix.Close(c.listenerFD)
	_ = unix.Close(c.termReadFD)
	_ = unix.Close(c.termWrite)
	_ = unix.Unlink(c.cfg.SocketPath)
}

// String implements fmt.Stringer for diagnostic logging of a Core's
// socket path, since *Core itself carries unexported fds.
func (c *Core) String() string {
	return fmt.Sprintf("dispatch.Core{socket=%s, peers=%d, running=%t}", c.cfg.SocketPath, c.peers.Len(), c.isRunning)
}
