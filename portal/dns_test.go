package portal

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// exchangeTimeout bounds the real UDP exchanges below.
const exchangeTimeout = 2 * time.Second

func TestAnswerHijacksEveryQuestion(t *testing.T) {
	r := newDNSResponder("127.0.0.1:0", net.ParseIP("192.168.4.1"))

	req := new(dns.Msg)
	req.SetQuestion("connectivitycheck.gstatic.com.", dns.TypeA)
	req.Question = append(req.Question, dns.Question{
		Name:   "example.org.",
		Qtype:  dns.TypeAAAA,
		Qclass: dns.ClassINET,
	})

	resp := r.answer(req)
	if !resp.Authoritative {
		t.Error("response not authoritative")
	}
	if len(resp.Answer) != 2 {
		t.Fatalf("got %d answers, want 2", len(resp.Answer))
	}
	for i, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			t.Fatalf("answer %d is %T, want *dns.A", i, rr)
		}
		if !a.A.Equal(net.ParseIP("192.168.4.1")) {
			t.Errorf("answer %d points at %v, want 192.168.4.1", i, a.A)
		}
		if a.Hdr.Ttl != hijackTTL {
			t.Errorf("answer %d TTL = %d, want %d", i, a.Hdr.Ttl, hijackTTL)
		}
		if a.Hdr.Name != req.Question[i].Name {
			t.Errorf("answer %d name = %q, want %q", i, a.Hdr.Name, req.Question[i].Name)
		}
	}
}

func TestResponderServesOverUDP(t *testing.T) {
	r := newDNSResponder("127.0.0.1:0", net.ParseIP("192.168.4.1"))
	if err := r.start(); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	defer r.stop()

	req := new(dns.Msg)
	req.SetQuestion("whatever.example.", dns.TypeA)

	client := &dns.Client{Timeout: exchangeTimeout}
	resp, _, err := client.Exchange(req, r.localAddr())
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if resp.Id != req.Id {
		t.Errorf("response id = %d, want %d", resp.Id, req.Id)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("got %d answers, want 1", len(resp.Answer))
	}
	a, ok := resp.Answer[0].(*dns.A)
	if !ok {
		t.Fatalf("answer is %T, want *dns.A", resp.Answer[0])
	}
	if !a.A.Equal(net.ParseIP("192.168.4.1")) {
		t.Errorf("answer points at %v, want 192.168.4.1", a.A)
	}
}

func TestStopReleasesSocket(t *testing.T) {
	r := newDNSResponder("127.0.0.1:0", net.ParseIP("192.168.4.1"))
	if err := r.start(); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	addr := r.localAddr()
	r.stop()

	// the port must be reusable immediately after stop
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		t.Fatalf("rebinding %s after stop: %v", addr, err)
	}
	conn.Close()

	r.stop() // idempotent
}
