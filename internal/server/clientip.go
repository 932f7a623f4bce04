package server

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// forwardedForHeader is appended to by each proxy a request passes through.
const forwardedForHeader = "X-Forwarded-For"

// clientResolver finds the address of the client behind any trusted
// reverse proxies.
type clientResolver struct {
	trusted []netip.Prefix
}

func (c *clientResolver) isTrusted(addr netip.Addr) bool {
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// resolve returns the client address of r.
//
// The peer address is the client unless it is a trusted proxy. In that case
// X-Forwarded-For is walked from the right, skipping trusted hops, and the
// first untrusted address is the client. An entry that does not parse
// stops the walk; the last good hop is used, since anything to its left
// was written by whoever sent the request.
func (c *clientResolver) resolve(r *http.Request) string {
	peer := remoteHost(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || len(c.trusted) == 0 || !c.isTrusted(addr.Unmap()) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values(forwardedForHeader), ","), ",")
	client := addr.Unmap()
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		client = hop.Unmap()
		if !c.isTrusted(client) {
			break
		}
	}
	return client.String()
}

// realIP stores the resolved client address for clientIP.
func realIP(resolver *clientResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientIPKey, resolver.resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP returns the client address stored by realIP, or the host part
// of the peer address for requests that did not pass through it.
func clientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok {
		return ip
	}
	return remoteHost(r)
}

// remoteHost returns the host part of r.RemoteAddr.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
