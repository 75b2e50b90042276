package cache

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/miradorstack/mirador-oracle/internal/config"
	"github.com/miradorstack/mirador-oracle/internal/utils"
)

// ValkeyProvider implements Provider against a Valkey/Redis-compatible server
// over a single RESP2 connection. The connection is re-established on the next
// call after any transport failure.
type ValkeyProvider struct {
	cfg config.ValkeyConfig

	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

// serverError is an error reply sent by the server. The connection that
// carried it is still usable.
type serverError string

func (e serverError) Error() string { return string(e) }

type replyKind byte

const (
	kindStatus replyKind = '+'
	kindInt    replyKind = ':'
	kindBulk   replyKind = '$'
	kindNil    replyKind = 0
)

type reply struct {
	kind replyKind
	data []byte
}

// NewValkeyProvider connects to cfg.Addr and pings it so that bad addresses or
// credentials fail at startup.
func NewValkeyProvider(ctx context.Context, cfg config.ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	p := &ValkeyProvider{cfg: cfg}
	r, err := p.do(ctx, "PING")
	if err != nil {
		return nil, err
	}
	if r.kind != kindStatus || string(r.data) != "PONG" {
		return nil, fmt.Errorf("unexpected PING reply %q", r.data)
	}
	return p, nil
}

// Get fetches the value stored at key.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := p.do(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	switch r.kind {
	case kindNil:
		return nil, ErrCacheMiss
	case kindBulk:
		return r.data, nil
	}
	return nil, fmt.Errorf("unexpected GET reply type %q", r.kind)
}

// Set stores value at key, expiring after ttl when ttl is positive.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r, err := p.do(ctx, setArgs(key, value, ttl)...)
	if err != nil {
		return err
	}
	if r.kind != kindStatus {
		return fmt.Errorf("unexpected SET reply type %q", r.kind)
	}
	return nil
}

// SetNX stores value only when key is absent and reports whether it did.
func (p *ValkeyProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	r, err := p.do(ctx, append(setArgs(key, value, ttl), "NX")...)
	if err != nil {
		return false, err
	}
	switch r.kind {
	case kindStatus:
		return true, nil
	case kindNil:
		return false, nil
	}
	return false, fmt.Errorf("unexpected SET NX reply type %q", r.kind)
}

// Del removes key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.do(ctx, "DEL", key)
	return err
}

// Close drops the connection.
func (p *ValkeyProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drop()
	return nil
}

func setArgs(key string, value []byte, ttl time.Duration) []string {
	args := []string{"SET", key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	return args
}

// do sends one command, reconnecting once if the pooled connection has gone
// stale.
func (p *ValkeyProvider) do(ctx context.Context, args ...string) (reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return reply{}, err
		}
		if p.conn == nil {
			if err := p.connect(ctx); err != nil {
				lastErr = err
				continue
			}
		}
		r, err := p.roundTrip(ctx, args)
		if err == nil {
			return r, nil
		}
		var se serverError
		if errors.As(err, &se) {
			return reply{}, utils.NewAppError("cache.valkey", args[0], err)
		}
		p.drop()
		lastErr = err
	}
	return reply{}, utils.NewAppError("cache.valkey", args[0], lastErr)
}

func (p *ValkeyProvider) connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: p.cfg.Timeout}
	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		host, _, splitErr := net.SplitHostPort(p.cfg.Addr)
		if splitErr != nil {
			host = p.cfg.Addr
		}
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}}
		conn, err = td.DialContext(ctx, "tcp", p.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return err
	}
	p.conn = conn
	p.rd = bufio.NewReader(conn)

	if p.cfg.Password != "" {
		auth := []string{"AUTH", p.cfg.Password}
		if p.cfg.Username != "" {
			auth = []string{"AUTH", p.cfg.Username, p.cfg.Password}
		}
		if _, err := p.roundTrip(ctx, auth); err != nil {
			p.drop()
			return fmt.Errorf("auth: %w", err)
		}
	}
	if p.cfg.DB > 0 {
		if _, err := p.roundTrip(ctx, []string{"SELECT", strconv.Itoa(p.cfg.DB)}); err != nil {
			p.drop()
			return fmt.Errorf("select db %d: %w", p.cfg.DB, err)
		}
	}
	return nil
}

func (p *ValkeyProvider) drop() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn = nil
	p.rd = nil
}

func (p *ValkeyProvider) roundTrip(ctx context.Context, args []string) (reply, error) {
	deadline := time.Now().Add(p.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.conn.SetDeadline(deadline); err != nil {
		return reply{}, err
	}
	if _, err := p.conn.Write(encodeCommand(args)); err != nil {
		return reply{}, err
	}
	return readReply(p.rd)
}

func encodeCommand(args []string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "*%d\r\n", len(args))
	for _, a := range args {
		fmt.Fprintf(&buf, "$%d\r\n%s\r\n", len(a), a)
	}
	return buf.Bytes()
}

func readReply(rd *bufio.Reader) (reply, error) {
	line, err := readLine(rd)
	if err != nil {
		return reply{}, err
	}
	if len(line) == 0 {
		return reply{}, errors.New("empty RESP line")
	}
	body := line[1:]
	switch line[0] {
	case '+':
		return reply{kind: kindStatus, data: body}, nil
	case ':':
		return reply{kind: kindInt, data: body}, nil
	case '-':
		return reply{}, serverError(body)
	case '$':
		size, err := strconv.Atoi(string(body))
		if err != nil {
			return reply{}, fmt.Errorf("bad bulk length %q", body)
		}
		if size < 0 {
			return reply{kind: kindNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(rd, buf); err != nil {
			return reply{}, err
		}
		if !bytes.HasSuffix(buf, []byte("\r\n")) {
			return reply{}, errors.New("bulk string missing CRLF")
		}
		return reply{kind: kindBulk, data: buf[:size]}, nil
	}
	return reply{}, fmt.Errorf("unexpected RESP prefix %q", line[0])
}

func readLine(rd *bufio.Reader) ([]byte, error) {
	line, err := rd.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}
