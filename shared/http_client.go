package shared

import (
	"net"
	"net/http"
	"time"
)

// Declare transports and clients once for better performance and stability

// Shared simple client (for fast endpoints, i.e., the market list)
var simpleTransport = &http.Transport{
	MaxIdleConns:    10,
	IdleConnTimeout: 300 * time.Second,
}

var simpleClient = &http.Client{
	Transport: simpleTransport,
	Timeout:   60 * time.Second,
}

// Shared extended-timeout client (for slow endpoints, i.e., marketpricefacts)
var slowTransport = &http.Transport{
	MaxIdleConns:          10,
	IdleConnTimeout:       1000 * time.Second,
	TLSHandshakeTimeout:   60 * time.Second,
	ExpectContinueTimeout: 10 * time.Second,
	DialContext: (&net.Dialer{
		Timeout:   60 * time.Second,
		KeepAlive: 300 * time.Second,
	}).DialContext,
	ResponseHeaderTimeout: 300 * time.Second,
}

var slowClient = &http.Client{
	Transport: slowTransport,
	Timeout:   300 * time.Second,
}

// FastClient returns the shared client used for quick API calls.
func FastClient() *http.Client {
	return simpleClient
}

// SlowClient returns the shared client used for large price downloads.
func SlowClient() *http.Client {
	return slowClient
}
