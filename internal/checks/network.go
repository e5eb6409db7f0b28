package checks

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/seantiz/parcheck/internal/model"
)

const maxResponseBodySize = 1 << 20 // 1MB

// TCP dials args.address and reports whether the connection opened.
func TCP(ctx context.Context, t model.Task) model.Result {
	addr := stringArg(t.Args, "address", "")
	if addr == "" {
		return result(t, model.StatusUnknown, "address is required")
	}
	timeout, err := secondsArg(t.Args, "timeout", DefaultTimeout)
	if err != nil {
		return result(t, model.StatusUnknown, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	latency := time.Since(start)
	if err != nil {
		res := result(t, model.StatusCritical, fmt.Sprintf("connect %s: %v", addr, err))
		res["latency_ms"] = latencyMS(latency)
		return res
	}
	_ = conn.Close()

	res := result(t, model.StatusOK, fmt.Sprintf("connected to %s", addr))
	res["latency_ms"] = latencyMS(latency)
	return res
}

// HTTP requests args.url and compares the response code with
// args.expect_status (default 200).
func HTTP(ctx context.Context, t model.Task) model.Result {
	url := stringArg(t.Args, "url", "")
	if url == "" {
		return result(t, model.StatusUnknown, "url is required")
	}
	method := stringArg(t.Args, "method", http.MethodGet)
	expect, err := intArg(t.Args, "expect_status", http.StatusOK)
	if err != nil {
		return result(t, model.StatusUnknown, err.Error())
	}
	timeout, err := secondsArg(t.Args, "timeout", DefaultTimeout)
	if err != nil {
		return result(t, model.StatusUnknown, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return result(t, model.StatusUnknown, fmt.Sprintf("build request: %v", err))
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		res := result(t, model.StatusCritical, fmt.Sprintf("request failed: %v", err))
		res["latency_ms"] = latencyMS(time.Since(start))
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain so the timing covers the whole response.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
	latency := time.Since(start)

	status := model.StatusOK
	info := fmt.Sprintf("%s %s returned %d", method, url, resp.StatusCode)
	if resp.StatusCode != expect {
		status = model.StatusCritical
		info = fmt.Sprintf("%s %s returned %d, expected %d", method, url, resp.StatusCode, expect)
	}

	res := result(t, status, info)
	res["http_status"] = resp.StatusCode
	res["latency_ms"] = latencyMS(latency)
	return res
}

// DNS resolves args.host.
func DNS(ctx context.Context, t model.Task) model.Result {
	host := stringArg(t.Args, "host", "")
	if host == "" {
		return result(t, model.StatusUnknown, "host is required")
	}
	timeout, err := secondsArg(t.Args, "timeout", DefaultTimeout)
	if err != nil {
		return result(t, model.StatusUnknown, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	latency := time.Since(start)
	if err != nil {
		res := result(t, model.StatusCritical, fmt.Sprintf("resolve %s: %v", host, err))
		res["latency_ms"] = latencyMS(latency)
		return res
	}

	res := result(t, model.StatusOK, fmt.Sprintf("%s resolved to %d address(es)", host, len(addrs)))
	res["addresses"] = addrs
	res["latency_ms"] = latencyMS(latency)
	return res
}
