package wgserv

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
	"gopkg.in/yaml.v3"
)

// Parse decodes and validates configuration text. The returned error is
// always a *ValidationError; use errors.Is with ErrUnknownField,
// ErrMalformedConfig or ErrInvalidKey to classify it.
func Parse(text string) (Config, error) {
	var doc document
	dec := yaml.NewDecoder(strings.NewReader(text))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, malformed("", errors.New("empty document"))
		}
		return Config{}, classifyDecodeError(err)
	}
	return doc.config()
}

// classifyDecodeError separates unknown-field reports from other yaml
// failures. yaml.v3 reports both through *yaml.TypeError.
func classifyDecodeError(err error) error {
	var typeErr *yaml.TypeError
	if !errors.As(err, &typeErr) {
		return malformed("", err)
	}
	for _, msg := range typeErr.Errors {
		if name, ok := unknownFieldName(msg); ok {
			return &ValidationError{Kind: KindUnknownField, Field: name, Err: errors.New(msg)}
		}
	}
	return malformed("", err)
}

// unknownFieldName extracts X from "line 3: field X not found in type T".
func unknownFieldName(msg string) (string, bool) {
	const prefix, suffix = "field ", " not found in type"
	end := strings.Index(msg, suffix)
	if end < 0 {
		return "", false
	}
	start := strings.LastIndex(msg[:end], prefix)
	if start < 0 {
		return "", false
	}
	return msg[start+len(prefix) : end], true
}

func (d document) config() (Config, error) {
	cfg := Config{Debug: d.Debug}

	for _, req := range []struct {
		name    string
		present bool
	}{
		{"private_key", d.PrivateKey != nil},
		{"peer_key", d.PeerKey != nil},
		{"bind_ip_port", d.BindIPPort != nil},
		{"mtu", d.MTU != nil},
		{"tcp_buffer_size", d.TCPBufferSize != nil},
		{"transmit_queue_capacity", d.TransmitQueueCapacity != nil},
		// An absent list decodes as nil; "[]" decodes as an empty slice.
		{"incoming_udp", d.IncomingUDP != nil},
		{"incoming_tcp", d.IncomingTCP != nil},
	} {
		if !req.present {
			return Config{}, malformed(req.name, errors.New("missing field"))
		}
	}

	var err error
	if cfg.BindIPPort, err = parseAddrPort("bind_ip_port", *d.BindIPPort); err != nil {
		return Config{}, err
	}
	if d.PeerEndpoint != nil {
		if cfg.PeerEndpoint, err = parseAddrPort("peer_endpoint", *d.PeerEndpoint); err != nil {
			return Config{}, err
		}
	}
	if d.DNSAddr != nil {
		if cfg.DNSAddr, err = parseAddrPort("dns_addr", *d.DNSAddr); err != nil {
			return Config{}, err
		}
	}
	if d.Pingable != nil {
		if cfg.Pingable, err = netip.ParseAddr(strings.TrimSpace(*d.Pingable)); err != nil {
			return Config{}, malformed("pingable", err)
		}
	}
	if d.KeepaliveInterval != nil {
		cfg.KeepaliveInterval = *d.KeepaliveInterval
	}

	if cfg.MTU, err = positive("mtu", *d.MTU); err != nil {
		return Config{}, err
	}
	if cfg.TCPBufferSize, err = positive("tcp_buffer_size", *d.TCPBufferSize); err != nil {
		return Config{}, err
	}
	if cfg.TransmitQueueCapacity, err = positive("transmit_queue_capacity", *d.TransmitQueueCapacity); err != nil {
		return Config{}, err
	}

	if cfg.IncomingUDP, err = parseForwards("incoming_udp", d.IncomingUDP); err != nil {
		return Config{}, err
	}
	if cfg.IncomingTCP, err = parseForwards("incoming_tcp", d.IncomingTCP); err != nil {
		return Config{}, err
	}

	// Keys are checked last so that structural problems are reported first.
	if cfg.PrivateKey, err = parseKey("private_key", *d.PrivateKey); err != nil {
		return Config{}, err
	}
	if cfg.PeerKey, err = parseKey("peer_key", *d.PeerKey); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseAddrPort(field, s string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(strings.TrimSpace(s))
	if err != nil {
		return netip.AddrPort{}, malformed(field, err)
	}
	return ap, nil
}

func positive(field string, v int) (int, error) {
	if v <= 0 {
		return 0, malformed(field, fmt.Errorf("must be positive, got %d", v))
	}
	return v, nil
}

func parseForwards(field string, docs []forwardDocument) ([]PortForward, error) {
	out := make([]PortForward, 0, len(docs))
	for i, fd := range docs {
		name := fmt.Sprintf("%s[%d]", field, i)
		if fd.Host == nil {
			return nil, malformed(name+".host", errors.New("missing field"))
		}
		if fd.Dst == nil {
			return nil, malformed(name+".dst", errors.New("missing field"))
		}
		var pf PortForward
		var err error
		if pf.Host, err = parseAddrPort(name+".host", *fd.Host); err != nil {
			return nil, err
		}
		if pf.Dst, err = parseAddrPort(name+".dst", *fd.Dst); err != nil {
			return nil, err
		}
		if fd.Src != nil {
			if pf.Src, err = parseAddrPort(name+".src", *fd.Src); err != nil {
				return nil, err
			}
		}
		out = append(out, pf)
	}
	return out, nil
}

func parseKey(field, s string) (wgtypes.Key, error) {
	key, err := wgtypes.ParseKey(strings.TrimSpace(s))
	if err != nil {
		return wgtypes.Key{}, &ValidationError{Kind: KindInvalidKey, Field: field, Err: err}
	}
	return key, nil
}
