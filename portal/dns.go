package portal

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/internet-of-plants/libiop/internal/logging"
)

// hijackTTL keeps clients re-asking quickly so the hijack stops mattering
// the moment the portal goes away.
const hijackTTL = 10

// dnsResponder answers every DNS query with an address record pointing at
// the device itself. No query is forwarded upstream: while the portal is
// up, the whole DNS namespace resolves to the configuration page.
type dnsResponder struct {
	addr   string
	device net.IP

	conn net.PacketConn
	srv  *dns.Server
}

func newDNSResponder(addr string, device net.IP) *dnsResponder {
	return &dnsResponder{addr: addr, device: device}
}

// start binds the UDP socket synchronously, so bind failures surface to
// the caller, then serves in the background.
func (r *dnsResponder) start() error {
	conn, err := net.ListenPacket("udp", r.addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", r.addr, err)
	}
	r.conn = conn
	r.srv = &dns.Server{
		PacketConn: conn,
		Handler:    dns.HandlerFunc(r.handle),
	}
	go func() {
		if err := r.srv.ActivateAndServe(); err != nil {
			logging.Debug("DNS responder exited", zap.Error(err))
		}
	}()
	logging.Info("DNS hijack responder started",
		zap.String("addr", conn.LocalAddr().String()),
		zap.String("answer", r.device.String()),
	)
	return nil
}

func (r *dnsResponder) stop() {
	if r.srv != nil {
		_ = r.srv.Shutdown()
		r.srv = nil
		r.conn = nil
	}
}

func (r *dnsResponder) handle(w dns.ResponseWriter, req *dns.Msg) {
	resp := r.answer(req)
	if err := w.WriteMsg(resp); err != nil {
		logging.Debug("DNS reply write failed", zap.Error(err))
	}
}

// answer builds the hijack response: an A record for every question,
// whatever its type, pointing at the device address.
func (r *dnsResponder) answer(req *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	for _, q := range req.Question {
		resp.Answer = append(resp.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    hijackTTL,
			},
			A: r.device.To4(),
		})
	}
	return resp
}

// localAddr reports the bound address, useful when addr was ":0".
func (r *dnsResponder) localAddr() string {
	if r.conn == nil {
		return ""
	}
	return r.conn.LocalAddr().String()
}
