package interface_directory

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// linkPlugin checks connectivity with sockets bound to one interface.
type linkPlugin struct {
	name   string
	wan    bool
	bind   bool
	client *http.Client

	mu     sync.RWMutex
	status WanStatus
}

var _ InterfacePlugin = (*linkPlugin)(nil)

func newLinkPlugin(name string, wan bool, httpTimeout time.Duration, bind bool) *linkPlugin {
	p := &linkPlugin{name: name, wan: wan, bind: bind}
	dialer := &net.Dialer{Timeout: httpTimeout}
	if bind {
		dialer.Control = bindToDevice(name)
	}
	p.client = &http.Client{
		Timeout: httpTimeout,
		Transport: &http.Transport{
			DialContext:       dialer.DialContext,
			DisableKeepAlives: true,
		},
		// A captive portal answers with a redirect; report it rather than follow it
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return p
}

func (p *linkPlugin) IsWAN() bool {
	return p.wan
}

// CheckWanConnectivity resolves probeHost through each resolver and succeeds
// when at least minSuccess resolvers answer.
func (p *linkPlugin) CheckWanConnectivity(ctx context.Context, resolvers []string, minSuccess int, timeout time.Duration, probeHost string, opts CheckOptions) (*bool, error) {
	attempts := opts.ProbeCount
	if attempts < 1 {
		attempts = 1
	}

	dialer := &net.Dialer{Timeout: timeout}
	if p.bind {
		dialer.Control = bindToDevice(p.name)
	}
	client := &dns.Client{Net: "udp", Timeout: timeout, Dialer: dialer}

	sent, succeeded := 0, 0
	for _, resolver := range resolvers {
		if succeeded >= minSuccess {
			break
		}
		for i := 0; i < attempts; i++ {
			msg := new(dns.Msg)
			msg.SetQuestion(dns.Fqdn(probeHost), dns.TypeA)
			resp, _, err := client.ExchangeContext(ctx, msg, resolverAddress(resolver))
			if err != nil {
				var opErr *net.OpError
				if !errors.As(err, &opErr) || opErr.Op != "dial" {
					sent++
				}
				logger.WithFields(logrus.Fields{
					"interface": p.name,
					"resolver":  resolver,
					"error":     err,
				}).Debug("DNS probe failed")
				continue
			}
			sent++
			if resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0 {
				succeeded++
				break
			}
		}
	}

	if sent == 0 {
		return nil, nil
	}

	ok := succeeded >= minSuccess
	p.mu.Lock()
	p.status.DNS = ok
	p.status.TS = time.Now().Unix()
	p.status.Ready = p.status.DNS || p.status.HTTP != ""
	p.mu.Unlock()
	return &ok, nil
}

func resolverAddress(resolver string) string {
	if _, _, err := net.SplitHostPort(resolver); err == nil {
		return resolver
	}
	return net.JoinHostPort(resolver, "53")
}

// CheckHttpStatus requests url through the interface and returns the status
// code of whatever answered.
func (p *linkPlugin) CheckHttpStatus(ctx context.Context, url string) string {
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}

	code := ""
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err == nil {
		var resp *http.Response
		resp, err = p.client.Do(req)
		if err == nil {
			resp.Body.Close()
			code = strconv.Itoa(resp.StatusCode)
		}
	}
	if err != nil {
		logger.WithFields(logrus.Fields{
			"interface": p.name,
			"url":       url,
			"error":     err,
		}).Debug("HTTP probe failed")
	}

	p.mu.Lock()
	p.status.HTTP = code
	p.status.TS = time.Now().Unix()
	p.status.Ready = p.status.DNS || p.status.HTTP != ""
	p.mu.Unlock()
	return code
}

// GetWanStatus returns a copy of the last observed status.
func (p *linkPlugin) GetWanStatus() *WanStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	status := p.status
	return &status
}
