// Package imapwire is the raw transport under the session layer: it
// dials the server, frames tagged request lines, and collects untagged
// response lines (with their literal payloads) up to the tagged status.
//
// It is strictly synchronous. One command is on the wire at a time and
// its tagged response is read before the next command is written;
// nothing here multiplexes tags.
package imapwire

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrConnection marks transport-level failures. Fatal for the
	// invocation: callers abort instead of continuing with later batches.
	ErrConnection = errors.New("imap: connection error")

	// ErrAuth marks a rejected LOGIN.
	ErrAuth = errors.New("imap: authentication failed")
)

// ServerError is a tagged NO or BAD response. The connection itself is
// still usable.
type ServerError struct {
	Status string // "NO" or "BAD"
	Text   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("imap: server returned %s %s", e.Status, e.Text)
}

const dialTimeout = 30 * time.Second

// Conn is a logged-in or pre-login IMAP connection.
type Conn struct {
	conn   net.Conn
	r      *bufio.Reader
	seq    int
	caps   map[string]bool
	closed bool
}

// Dial connects to host:port, optionally via TLS, and consumes the
// server greeting. Capabilities advertised in the greeting are captured;
// Login refreshes them after authentication.
func Dial(host string, port int, useTLS bool) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var conn net.Conn
	var err error
	if useTLS {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", addr, &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		})
	} else {
		if !isLoopback(host) {
			log.Warn().Str("host", host).Msg("connecting without TLS; credentials will be sent in plaintext (use --tls for remote servers)")
		}
		conn, err = net.DialTimeout("tcp", addr, dialTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}

	c := NewConn(conn)
	greeting, err := c.readLine()
	if err != nil {
		conn.Close()
		return nil, err
	}
	log.Debug().Str("dir", "<-").Msg(greeting)
	if !strings.HasPrefix(greeting, "* OK") && !strings.HasPrefix(greeting, "* PREAUTH") {
		conn.Close()
		return nil, fmt.Errorf("%w: unexpected greeting %q", ErrConnection, greeting)
	}
	c.captureCaps(greeting)
	return c, nil
}

// NewConn wraps an established connection. No greeting is read; intended
// for tests and custom transports.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, r: bufio.NewReader(conn), caps: map[string]bool{}}
}

func isLoopback(host string) bool {
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}

// Line is one untagged response line with any literal payloads that were
// embedded in it.
type Line struct {
	Text     string
	Literals [][]byte
}

// Response is everything the server sent for one command.
type Response struct {
	Lines  []Line
	Status string // "OK"
	Info   string // human text after the tagged status
}

var literalRe = regexp.MustCompile(`\{(\d+)\}$`)

// Execute writes cmd as a tagged request line and reads until its tagged
// response. NO and BAD come back as *ServerError alongside the collected
// response; transport failures wrap ErrConnection.
func (c *Conn) Execute(cmd string) (*Response, error) {
	c.seq++
	tag := fmt.Sprintf("s%04d", c.seq)

	logged := cmd
	if strings.HasPrefix(cmd, "LOGIN ") {
		logged = "LOGIN [redacted]"
	}
	log.Debug().Str("dir", "->").Msg(tag + " " + logged)

	if _, err := c.conn.Write([]byte(tag + " " + cmd + "\r\n")); err != nil {
		return nil, fmt.Errorf("%w: write: %v", ErrConnection, err)
	}

	resp := &Response{}
	for {
		text, err := c.readLine()
		if err != nil {
			return nil, err
		}
		log.Debug().Str("dir", "<-").Msg(text)

		if after, ok := strings.CutPrefix(text, tag+" "); ok {
			status, info, _ := strings.Cut(after, " ")
			resp.Status = status
			resp.Info = info
			switch status {
			case "OK":
				return resp, nil
			case "NO", "BAD":
				return resp, &ServerError{Status: status, Text: info}
			default:
				return resp, fmt.Errorf("%w: malformed tagged response %q", ErrConnection, text)
			}
		}
		if strings.HasPrefix(text, "+") {
			// We never send literals, so a continuation request means the
			// command line was malformed upstream. Bail out rather than hang.
			return resp, fmt.Errorf("%w: unexpected continuation request", ErrConnection)
		}

		line := Line{Text: text}
		for {
			m := literalRe.FindStringSubmatch(line.Text)
			if m == nil {
				break
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				break
			}
			lit, err := c.readLiteral(n)
			if err != nil {
				return nil, err
			}
			line.Literals = append(line.Literals, lit)
			rest, err := c.readLine()
			if err != nil {
				return nil, err
			}
			line.Text = strings.TrimSuffix(line.Text, m[0]) + rest
		}
		resp.Lines = append(resp.Lines, line)
	}
}

// Login authenticates with quoted credentials and refreshes the
// capability set. On rejection the connection is logged out so no
// half-open session leaks.
func (c *Conn) Login(user string, pass []byte) error {
	qu, err := quoteCredential(user)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	qp, err := quoteCredential(string(pass))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	resp, err := c.Execute("LOGIN " + qu + " " + qp)
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		_ = c.Logout()
		return fmt.Errorf("%w: %s", ErrAuth, srvErr.Text)
	}
	if err != nil {
		return err
	}
	c.captureCaps(resp.Info)

	// Servers commonly advertise a different capability set once
	// authenticated; fetch it now and never again for this session.
	caps, err := c.Execute("CAPABILITY")
	if err != nil {
		var se *ServerError
		if errors.As(err, &se) {
			return nil // keep greeting/login capabilities
		}
		return err
	}
	for _, line := range caps.Lines {
		if rest, ok := strings.CutPrefix(line.Text, "* CAPABILITY "); ok {
			c.caps = map[string]bool{}
			for _, tok := range strings.Fields(rest) {
				c.caps[strings.ToUpper(tok)] = true
			}
		}
	}
	return nil
}

// Capable reports whether the server advertised the named capability.
func (c *Conn) Capable(name string) bool {
	return c.caps[strings.ToUpper(name)]
}

// Logout sends LOGOUT and closes the connection. Safe to call on every
// exit path; repeat calls are no-ops.
func (c *Conn) Logout() error {
	if c.closed {
		return nil
	}
	c.closed = true
	_, err := c.Execute("LOGOUT")
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		err = nil
	}
	if cerr := c.conn.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: close: %v", ErrConnection, cerr)
	}
	return err
}

func (c *Conn) readLine() (string, error) {
	s, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%w: read: %v", ErrConnection, err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func (c *Conn) readLiteral(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, fmt.Errorf("%w: read literal: %v", ErrConnection, err)
	}
	return buf, nil
}

// captureCaps pulls capabilities out of a [CAPABILITY ...] response code.
func (c *Conn) captureCaps(s string) {
	start := strings.Index(s, "[CAPABILITY ")
	if start < 0 {
		return
	}
	rest := s[start+len("[CAPABILITY "):]
	end := strings.Index(rest, "]")
	if end < 0 {
		return
	}
	c.caps = map[string]bool{}
	for _, tok := range strings.Fields(rest[:end]) {
		c.caps[strings.ToUpper(tok)] = true
	}
}

var credEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quoteCredential quotes a LOGIN argument. Control characters would end
// the request line early, so they are refused, mirroring the criteria
// compiler's rule.
func quoteCredential(s string) (string, error) {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "", errors.New("control character in credential")
		}
	}
	return `"` + credEscaper.Replace(s) + `"`, nil
}
