package wireguard

import (
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"golang.zx2c4.com/wireguard/conn"
)

func TestAddrBindOpenSendReceive(t *testing.T) {
	t.Parallel()

	b := newAddrBind(netip.MustParseAddr("127.0.0.1"))
	fns, port, err := b.Open(0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()
	if port == 0 || len(fns) != 1 {
		t.Fatalf("Open() = %d funcs, port %d", len(fns), port)
	}
	if _, _, err := b.Open(0); !errors.Is(err, conn.ErrBindAlreadyOpen) {
		t.Fatalf("second Open() error = %v, want ErrBindAlreadyOpen", err)
	}

	peer, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(netip.MustParseAddrPort("127.0.0.1:0")))
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()
	peerAddr := peer.LocalAddr().(*net.UDPAddr).AddrPort()

	ep, err := b.ParseEndpoint(peerAddr.String())
	if err != nil {
		t.Fatalf("ParseEndpoint() error = %v", err)
	}
	if ep.DstIP() != peerAddr.Addr() || ep.DstToString() != peerAddr.String() {
		t.Fatalf("endpoint = %s, want %s", ep.DstToString(), peerAddr)
	}

	if err := b.Send([][]byte{[]byte("ping")}, ep); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	_ = peer.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 64)
	n, from, err := peer.ReadFromUDPAddrPort(buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if string(buf[:n]) != "ping" || from.Port() != port {
		t.Fatalf("peer got %q from %s, want ping from port %d", buf[:n], from, port)
	}

	if _, err := peer.WriteToUDPAddrPort([]byte("pong"), from); err != nil {
		t.Fatal(err)
	}
	packets := [][]byte{make([]byte, 64)}
	sizes := make([]int, 1)
	eps := make([]conn.Endpoint, 1)
	count, err := fns[0](packets, sizes, eps)
	if err != nil {
		t.Fatalf("receive error = %v", err)
	}
	if count != 1 || string(packets[0][:sizes[0]]) != "pong" || eps[0].DstToString() != peerAddr.String() {
		t.Fatalf("received %d packets %q from %v", count, packets[0][:sizes[0]], eps[0])
	}
}

func TestAddrBindListensOnlyOnItsAddress(t *testing.T) {
	t.Parallel()

	b := newAddrBind(netip.MustParseAddr("127.0.0.1"))
	_, port, err := b.Open(0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	b.mu.Lock()
	local := b.uc.LocalAddr().(*net.UDPAddr).AddrPort()
	b.mu.Unlock()
	if want := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port); local != want {
		t.Fatalf("bound to %s, want %s", local, want)
	}
}

func TestAddrBindSendAfterClose(t *testing.T) {
	t.Parallel()

	b := newAddrBind(netip.MustParseAddr("127.0.0.1"))
	if _, _, err := b.Open(0); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	ep, _ := b.ParseEndpoint("127.0.0.1:9")
	if err := b.Send([][]byte{{1}}, ep); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("Send() after close error = %v, want net.ErrClosed", err)
	}
}

func TestParseEndpointRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := newAddrBind(netip.MustParseAddr("127.0.0.1")).ParseEndpoint("not-an-endpoint"); err == nil {
		t.Fatal("ParseEndpoint() accepted garbage")
	}
}
