package wgserv

import (
	"fmt"
	"net/netip"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
	"gopkg.in/yaml.v3"
)

const (
	samplePrivateKey = "4E4npXgGTLPE/1o25Ewz6WzugXjj9fRA1sIdgGFwR38="
	samplePeerKey    = "c5Hiwoc50CTASEo8DvIcE0g2eJcUsNQdqrQ9ddMlxQo="
)

// Sample returns a runnable example configuration. It is known-good and is
// not passed through Parse.
func Sample() Config {
	return Config{
		Debug:             true,
		PrivateKey:        mustKey(samplePrivateKey),
		PeerKey:           mustKey(samplePeerKey),
		PeerEndpoint:      netip.MustParseAddrPort("127.0.0.1:9797"),
		KeepaliveInterval: 15,
		BindIPPort:        netip.MustParseAddrPort("192.168.12.15:9798"),
		// Queries sent to this address inside the tunnel are answered locally.
		DNSAddr: netip.MustParseAddrPort("8.8.8.8:53"),
		// ICMP echo to this address inside the tunnel is answered locally.
		Pingable:              netip.MustParseAddr("192.168.24.2"),
		MTU:                   1420,
		TCPBufferSize:         65536,
		IncomingUDP:           []PortForward{},
		IncomingTCP:           []PortForward{},
		TransmitQueueCapacity: 128,
	}
}

// SampleText renders Sample in configuration text form.
func SampleText() string {
	out, err := Sample().MarshalText()
	if err != nil {
		panic(fmt.Sprintf("wgserv: encode sample config: %v", err))
	}
	return string(out)
}

// MarshalText renders the configuration in the text form accepted by Parse.
func (c Config) MarshalText() ([]byte, error) {
	doc := document{
		Debug:                 c.Debug,
		PrivateKey:            ptr(c.PrivateKey.String()),
		PeerKey:               ptr(c.PeerKey.String()),
		BindIPPort:            ptr(c.BindIPPort.String()),
		MTU:                   ptr(c.MTU),
		TCPBufferSize:         ptr(c.TCPBufferSize),
		IncomingUDP:           encodeForwards(c.IncomingUDP),
		IncomingTCP:           encodeForwards(c.IncomingTCP),
		TransmitQueueCapacity: ptr(c.TransmitQueueCapacity),
	}
	if c.PeerEndpoint.IsValid() {
		doc.PeerEndpoint = ptr(c.PeerEndpoint.String())
	}
	if c.KeepaliveInterval != 0 {
		doc.KeepaliveInterval = ptr(c.KeepaliveInterval)
	}
	if c.DNSAddr.IsValid() {
		doc.DNSAddr = ptr(c.DNSAddr.String())
	}
	if c.Pingable.IsValid() {
		doc.Pingable = ptr(c.Pingable.String())
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

func encodeForwards(fwds []PortForward) []forwardDocument {
	out := make([]forwardDocument, 0, len(fwds))
	for _, f := range fwds {
		fd := forwardDocument{Host: ptr(f.Host.String()), Dst: ptr(f.Dst.String())}
		if f.Src.IsValid() {
			fd.Src = ptr(f.Src.String())
		}
		out = append(out, fd)
	}
	return out
}

func mustKey(s string) wgtypes.Key {
	k, err := wgtypes.ParseKey(s)
	if err != nil {
		panic(fmt.Sprintf("wgserv: parse built-in key: %v", err))
	}
	return k
}

func ptr[T any](v T) *T { return &v }
