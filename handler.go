package proxy

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
)

// maxHeadSize caps an inbound request head per §4.9: exceeding it without
// finding the terminating blank line is rejected as malformed.
const maxHeadSize = 64 * 1024

// headReadTimeout bounds reading the request head, per §5.
const headReadTimeout = 30 * time.Second

// RequestHead is the parsed first request on a client connection: the
// request line plus headers, with the raw header bytes captured verbatim
// so a forwarding dial can rewrite only the request-target and leave
// everything else byte-identical.
type RequestHead struct {
	Method     string
	RequestURI string
	Proto      string
	Header     textproto.MIMEHeader
	rawHeaders []byte

	IsConnect bool
	Host      string
	Port      int
}

// ReadHead reads from r until the end of the HTTP request head
// ("\r\n\r\n") or error, rejecting heads that exceed maxHeadSize without
// terminating or that are otherwise malformed.
func ReadHead(r *bufio.Reader) (*RequestHead, error) {
	tp := textproto.NewReader(r)

	requestLine, err := tp.ReadLine()
	if err != nil {
		return nil, &ClientProtocolError{Reason: "reading request line: " + err.Error()}
	}
	if len(requestLine) > maxHeadSize {
		return nil, &ClientProtocolError{Reason: "request line too large"}
	}

	parts := strings.SplitN(requestLine, " ", 3)
	if len(parts) != 3 {
		return nil, &ClientProtocolError{Reason: "malformed request line"}
	}

	var rawHeaders bytes.Buffer
	header, err := readHeadersCapped(tp, &rawHeaders, len(requestLine)+2)
	if err != nil {
		return nil, &ClientProtocolError{Reason: "reading headers: " + err.Error()}
	}

	return &RequestHead{
		Method:     parts[0],
		RequestURI: parts[1],
		Proto:      parts[2],
		Header:     header,
		rawHeaders: rawHeaders.Bytes(),
	}, nil
}

// readHeadersCapped reads header lines up to the terminating blank line,
// recording their raw bytes and rejecting a head whose total size (seeded
// with the request line's already-counted size) exceeds maxHeadSize.
func readHeadersCapped(tp *textproto.Reader, raw *bytes.Buffer, seed int) (textproto.MIMEHeader, error) {
	header := make(textproto.MIMEHeader)
	total := seed

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return nil, err
		}
		total += len(line) + 2
		if total > maxHeadSize {
			return nil, fmt.Errorf("request head exceeds %d bytes", maxHeadSize)
		}
		if line == "" {
			raw.WriteString("\r\n")
			return header, nil
		}

		raw.WriteString(line)
		raw.WriteString("\r\n")

		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:idx]))
		header.Add(key, strings.TrimSpace(line[idx+1:]))
	}
}

// Classify extracts the target host:port from head. CONNECT requests use
// authority-form; everything else derives host/port from, in priority, the
// absolute-URI authority or the Host header.
func (h *RequestHead) Classify() error {
	if strings.EqualFold(h.Method, "CONNECT") {
		h.IsConnect = true
		host, port, err := splitHostPort(h.RequestURI, 443)
		if err != nil {
			return &ClientProtocolError{Reason: "CONNECT target: " + err.Error()}
		}
		h.Host, h.Port = host, port
		return nil
	}

	if isAbsoluteURI(h.RequestURI) {
		u, err := url.Parse(h.RequestURI)
		if err != nil {
			return &ClientProtocolError{Reason: "absolute-URI: " + err.Error()}
		}
		host, port, err := splitHostPort(u.Host, 80)
		if err != nil {
			return &ClientProtocolError{Reason: "absolute-URI authority: " + err.Error()}
		}
		h.Host, h.Port = host, port
		return nil
	}

	if hostHeader := h.Header.Get("Host"); hostHeader != "" {
		host, port, err := splitHostPort(hostHeader, 80)
		if err != nil {
			return &ClientProtocolError{Reason: "Host header: " + err.Error()}
		}
		h.Host, h.Port = host, port
		return nil
	}

	return &ClientProtocolError{Reason: "no Host header and no absolute-URI request-target"}
}

func isAbsoluteURI(requestURI string) bool {
	return strings.HasPrefix(requestURI, "http://") || strings.HasPrefix(requestURI, "https://")
}

func splitHostPort(hostport string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

// RewriteOriginForm renders the head with the request-target replaced by
// its origin-form path, for a Direct or Socks5 dial.
func (h *RequestHead) RewriteOriginForm() []byte {
	return h.render(h.originForm())
}

// RewriteAbsoluteForm renders the head with an absolute-form
// request-target, for forwarding through an Http profile.
func (h *RequestHead) RewriteAbsoluteForm() []byte {
	target := h.RequestURI
	if !isAbsoluteURI(target) {
		target = fmt.Sprintf("http://%s%s", net.JoinHostPort(h.Host, strconv.Itoa(h.Port)), h.originForm())
	}
	return h.render(target)
}

func (h *RequestHead) originForm() string {
	if isAbsoluteURI(h.RequestURI) {
		if u, err := url.Parse(h.RequestURI); err == nil {
			path := u.Path
			if path == "" {
				path = "/"
			}
			if u.RawQuery != "" {
				path += "?" + u.RawQuery
			}
			return path
		}
	}
	return h.RequestURI
}

func (h *RequestHead) render(target string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s %s\r\n", h.Method, target, h.Proto)
	buf.Write(h.rawHeaders)
	return buf.Bytes()
}

// HandleConnection runs the full per-connection state machine: ReadHead,
// Classify, Resolve, Dial, Respond-or-Tunnel, Close. It never panics on a
// routine fault; failures are logged and translated into the client-visible
// response from §7, or a bare close if bytes have already been proxied.
func HandleConnection(ctx context.Context, conn net.Conn, cell *Cell) {
	defer conn.Close()

	id := xid.New().String()
	peer := conn.RemoteAddr().String()
	log := WithFields(id, peer, "")
	snapshot := cell.Load()

	conn.SetReadDeadline(time.Now().Add(headReadTimeout))
	r := bufio.NewReader(conn)
	head, err := ReadHead(r)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		log.Warnf("bad request: %v", err)
		writeStatus(conn, 400, "Bad Request")
		return
	}

	if err := head.Classify(); err != nil {
		log.Warnf("unclassifiable request: %v", err)
		writeStatus(conn, 400, "Bad Request")
		return
	}

	profile, err := snapshot.Resolve(head.Host)
	if err != nil {
		log.Errorf("%v", err)
		writeStatus(conn, 502, "Bad Gateway")
		return
	}

	log = WithFields(id, peer, string(profile.Scheme))
	log.Infof("accepted, routing %s:%d via %s", head.Host, head.Port, profile.Scheme)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	upstream, err := dialUpstream(dialCtx, head, profile)
	cancel()
	if err != nil {
		log.Errorf("upstream dial failed: %v", err)
		writeStatus(conn, 502, "Bad Gateway")
		return
	}
	defer upstream.Close()

	client := NewConn(conn, r)

	if head.IsConnect {
		if _, err := conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
			log.Debugf("writing CONNECT reply: %v", err)
			return
		}
	} else {
		var headBytes []byte
		if profile.Scheme == SchemeHttp {
			headBytes = head.RewriteAbsoluteForm()
		} else {
			headBytes = head.RewriteOriginForm()
		}
		if _, err := upstream.Write(headBytes); err != nil {
			log.Errorf("writing request to upstream: %v", err)
			return
		}
	}

	switch err := Tunnel(ctx, client, upstream); {
	case err == nil:
	case errors.Is(err, ErrCancelled):
		log.Debugf("tunnel ended: shutdown")
	case IsConnReset(err) || IsConnAborted(err):
		log.Debugf("tunnel ended: peer reset the connection")
	default:
		log.Warnf("tunnel ended: %v", err)
	}
}

func dialUpstream(ctx context.Context, head *RequestHead, profile Profile) (net.Conn, error) {
	switch profile.Scheme {
	case SchemeSocks5:
		d := &Socks5Dialer{ProxyHost: profile.Host, ProxyPort: profile.Port}
		return d.Dial(ctx, head.Host, head.Port)
	case SchemeHttp:
		if head.IsConnect {
			d := &HttpProxyDialer{ProxyHost: profile.Host, ProxyPort: profile.Port}
			return d.Dial(ctx, head.Host, head.Port)
		}
		return DialForwarding(ctx, profile.Host, profile.Port)
	default:
		return DirectDialer{}.Dial(ctx, head.Host, head.Port)
	}
}

func writeStatus(conn net.Conn, code int, text string) {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\n\r\n", code, text)
	conn.SetWriteDeadline(time.Time{})
}
