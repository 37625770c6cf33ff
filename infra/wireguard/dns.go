package wireguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/dns/dnsmessage"
)

const (
	dnsAnswerTTL     = 60
	dnsLookupTimeout = 10 * time.Second
)

// Resolver looks up host addresses. *net.Resolver implements it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// serveDNS answers queries sent to pc until ctx ends. Each query is
// resolved in its own goroutine so a slow lookup does not hold up others.
func serveDNS(ctx context.Context, pc net.PacketConn, res Resolver, log *slog.Logger) error {
	stop := context.AfterFunc(ctx, func() { _ = pc.Close() })
	defer stop()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read dns query: %w", err)
		}
		query := append([]byte(nil), buf[:n]...)

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			lctx, cancel := context.WithTimeout(ctx, dnsLookupTimeout)
			defer cancel()
			reply, err := answerDNS(lctx, res, query)
			if err != nil {
				log.Debug("drop dns query", "from", from, "err", err)
				return
			}
			if _, err := pc.WriteTo(reply, from); err != nil && ctx.Err() == nil {
				log.Debug("send dns reply failed", "to", from, "err", err)
			}
		}()
	}
}

// answerDNS builds the reply to a single query. A and AAAA questions are
// resolved with res; anything else is answered NOTIMP. Queries that cannot
// be parsed far enough to reply to are returned as errors.
func answerDNS(ctx context.Context, res Resolver, query []byte) ([]byte, error) {
	var p dnsmessage.Parser
	hdr, err := p.Start(query)
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	if hdr.Response {
		return nil, errors.New("not a query")
	}

	reply := dnsmessage.Header{
		ID:                 hdr.ID,
		Response:           true,
		OpCode:             hdr.OpCode,
		RecursionDesired:   hdr.RecursionDesired,
		RecursionAvailable: true,
	}

	q, err := p.Question()
	if err != nil {
		reply.RCode = dnsmessage.RCodeFormatError
		return buildDNS(reply, nil, nil)
	}
	if hdr.OpCode != 0 || (q.Type != dnsmessage.TypeA && q.Type != dnsmessage.TypeAAAA) || q.Class != dnsmessage.ClassINET {
		reply.RCode = dnsmessage.RCodeNotImplemented
		return buildDNS(reply, &q, nil)
	}

	network := "ip4"
	if q.Type == dnsmessage.TypeAAAA {
		network = "ip6"
	}
	host := strings.TrimSuffix(q.Name.String(), ".")
	addrs, err := res.LookupNetIP(ctx, network, host)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			reply.RCode = dnsmessage.RCodeNameError
		} else {
			reply.RCode = dnsmessage.RCodeServerFailure
		}
		return buildDNS(reply, &q, nil)
	}
	reply.RCode = dnsmessage.RCodeSuccess
	return buildDNS(reply, &q, addrs)
}

func buildDNS(hdr dnsmessage.Header, q *dnsmessage.Question, addrs []netip.Addr) ([]byte, error) {
	b := dnsmessage.NewBuilder(make([]byte, 0, 512), hdr)
	b.EnableCompression()
	if err := b.StartQuestions(); err != nil {
		return nil, err
	}
	if q == nil {
		return b.Finish()
	}
	if err := b.Question(*q); err != nil {
		return nil, err
	}
	if err := b.StartAnswers(); err != nil {
		return nil, err
	}
	for _, a := range addrs {
		a = a.Unmap()
		rh := dnsmessage.ResourceHeader{Name: q.Name, Class: dnsmessage.ClassINET, TTL: dnsAnswerTTL}
		switch {
		case q.Type == dnsmessage.TypeA && a.Is4():
			if err := b.AResource(rh, dnsmessage.AResource{A: a.As4()}); err != nil {
				return nil, err
			}
		case q.Type == dnsmessage.TypeAAAA && a.Is6():
			if err := b.AAAAResource(rh, dnsmessage.AAAAResource{AAAA: a.As16()}); err != nil {
				return nil, err
			}
		}
	}
	return b.Finish()
}
