package backend

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"
)

type NetworkMetrics struct {
	DNS        time.Duration
	ConnWait   time.Duration
	TCP        time.Duration
	TLS        time.Duration
	ReqHeaders time.Duration
	ReqBody    time.Duration
	TTFB       time.Duration
	Download   time.Duration
	Total      time.Duration
	ConnReused bool
	SentBytes  int64
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

// TracedClient records per-phase timings of every request it sends.
type TracedClient struct {
	client *http.Client
}

func NewTracedClient(timeout time.Duration) *TracedClient {
	return &TracedClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

// phases holds the trace timestamps. The transport fires trace callbacks
// from its own goroutines, so every field is read and written under mu.
type phases struct {
	mu      sync.Mutex
	metrics NetworkMetrics

	getConn, dns, tcp, tlsStart time.Time
	gotConn, wroteHeaders       time.Time
	wroteRequest, firstByte     time.Time
}

func (p *phases) mark(f func()) {
	p.mu.Lock()
	f()
	p.mu.Unlock()
}

func (p *phases) trace() *httptrace.ClientTrace {
	m := &p.metrics
	return &httptrace.ClientTrace{
		GetConn: func(_ string) { p.mark(func() { p.getConn = time.Now() }) },
		GotConn: func(info httptrace.GotConnInfo) {
			p.mark(func() {
				p.gotConn = time.Now()
				m.ConnWait = p.gotConn.Sub(p.getConn)
				m.ConnReused = info.Reused
			})
		},
		DNSStart:          func(_ httptrace.DNSStartInfo) { p.mark(func() { p.dns = time.Now() }) },
		DNSDone:           func(_ httptrace.DNSDoneInfo) { p.mark(func() { m.DNS = time.Since(p.dns) }) },
		ConnectStart:      func(_, _ string) { p.mark(func() { p.tcp = time.Now() }) },
		ConnectDone:       func(_, _ string, _ error) { p.mark(func() { m.TCP = time.Since(p.tcp) }) },
		TLSHandshakeStart: func() { p.mark(func() { p.tlsStart = time.Now() }) },
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			p.mark(func() { m.TLS = time.Since(p.tlsStart) })
		},
		WroteHeaders: func() {
			p.mark(func() {
				p.wroteHeaders = time.Now()
				m.ReqHeaders = p.wroteHeaders.Sub(p.gotConn)
			})
		},
		WroteRequest: func(_ httptrace.WroteRequestInfo) {
			p.mark(func() {
				p.wroteRequest = time.Now()
				m.ReqBody = p.wroteRequest.Sub(p.wroteHeaders)
			})
		},
		GotFirstResponseByte: func() {
			p.mark(func() {
				p.firstByte = time.Now()
				m.TTFB = p.firstByte.Sub(p.wroteRequest)
			})
		},
	}
}

func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	p := &phases{metrics: NetworkMetrics{SentBytes: req.ContentLength}}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), p.trace()))
	reqStart := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	metrics := p.metrics
	if !p.firstByte.IsZero() {
		metrics.Download = time.Since(p.firstByte)
	}
	p.mu.Unlock()
	metrics.Total = time.Since(reqStart)

	return &TracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    &metrics,
	}, nil
}

// Warm opens a connection to url ahead of the first real request and
// returns how long the TLS handshake took.
func (c *TracedClient) Warm(url string) time.Duration {
	p := &phases{}
	trace := &httptrace.ClientTrace{
		TLSHandshakeStart: func() { p.mark(func() { p.tlsStart = time.Now() }) },
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			p.mark(func() { p.metrics.TLS = time.Since(p.tlsStart) })
		},
	}

	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return 0
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	resp, err := c.client.Do(req)
	if err != nil {
		return 0
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics.TLS
}
