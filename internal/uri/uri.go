// Package uri formats and parses PostgreSQL connection URIs, including
// multi-host topologies.
package uri

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultScheme is used when a Descriptor leaves Scheme empty.
	DefaultScheme = "postgresql"

	// DefaultPort is assumed for hosts parsed without an explicit port.
	DefaultPort = 5432
)

// ErrInvalidURI is returned when a connection string cannot be parsed.
var ErrInvalidURI = errors.New("invalid connection uri")

// Host is a single host/port pair of a connection target.
type Host struct {
	Host string
	Port int
}

// String renders the pair as host[:port].
func (h Host) String() string {
	if h.Port > 0 {
		return h.Host + ":" + strconv.Itoa(h.Port)
	}
	return h.Host
}

// Descriptor is the structured form of a connection URI.
type Descriptor struct {
	Scheme   string
	Username string
	Password string
	Database string
	Hosts    []Host
	Options  url.Values
}

// Format renders the canonical URI:
// scheme://[user[:pass]@]h1[:p1][,h2[:p2]...]/database[?options].
func Format(d Descriptor) string {
	var b strings.Builder

	scheme := d.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	b.WriteString(scheme)
	b.WriteString("://")

	if d.Username != "" {
		info := url.User(d.Username)
		if d.Password != "" {
			info = url.UserPassword(d.Username, d.Password)
		}
		b.WriteString(info.String())
		b.WriteString("@")
	}

	hosts := make([]string, 0, len(d.Hosts))
	for _, h := range d.Hosts {
		hosts = append(hosts, h.String())
	}
	b.WriteString(strings.Join(hosts, ","))

	b.WriteString("/")
	b.WriteString(url.PathEscape(d.Database))

	if len(d.Options) > 0 {
		b.WriteString("?")
		b.WriteString(d.Options.Encode())
	}
	return b.String()
}

// FormatDriver turns a canonical URI into the driver rendering: one full
// URI per host pair, comma-joined. Single-host URIs come back unchanged.
func FormatDriver(canonical string) (string, error) {
	d, err := Parse(canonical)
	if err != nil {
		return "", err
	}
	if len(d.Hosts) <= 1 {
		return canonical, nil
	}

	parts := make([]string, 0, len(d.Hosts))
	for _, h := range d.Hosts {
		single := d
		single.Hosts = []Host{h}
		parts = append(parts, Format(single))
	}
	return strings.Join(parts, ","), nil
}

// Parse parses a canonical connection URI into a Descriptor.
func Parse(s string) (Descriptor, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok || scheme == "" {
		return Descriptor{}, fmt.Errorf("%w: missing scheme in %q", ErrInvalidURI, s)
	}

	d := Descriptor{Scheme: scheme}

	if i := strings.IndexByte(rest, '?'); i >= 0 {
		opts, err := url.ParseQuery(rest[i+1:])
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
		}
		if len(opts) > 0 {
			d.Options = opts
		}
		rest = rest[:i]
	}

	authority, database, _ := strings.Cut(rest, "/")
	name, err := url.PathUnescape(database)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: database: %v", ErrInvalidURI, err)
	}
	d.Database = name

	if i := strings.LastIndexByte(authority, '@'); i >= 0 {
		if err := parseUserInfo(&d, authority[:i]); err != nil {
			return Descriptor{}, err
		}
		authority = authority[i+1:]
	}

	if authority == "" {
		return Descriptor{}, fmt.Errorf("%w: missing host in %q", ErrInvalidURI, s)
	}
	for _, part := range strings.Split(authority, ",") {
		h, err := ParseHost(part)
		if err != nil {
			return Descriptor{}, err
		}
		d.Hosts = append(d.Hosts, h)
	}

	return d, nil
}

// ParseDriver parses the output of FormatDriver, merging the per-host
// URIs back into a single Descriptor.
func ParseDriver(s string) (Descriptor, error) {
	scheme, _, ok := strings.Cut(s, "://")
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: missing scheme in %q", ErrInvalidURI, s)
	}

	segments := strings.Split(s, ","+scheme+"://")
	first, err := Parse(segments[0])
	if err != nil {
		return Descriptor{}, err
	}
	for _, seg := range segments[1:] {
		next, err := Parse(scheme + "://" + seg)
		if err != nil {
			return Descriptor{}, err
		}
		first.Hosts = append(first.Hosts, next.Hosts...)
	}
	return first, nil
}

const mask = "xxxxx"

// Redact returns s with its password masked, for logging. Strings that do
// not parse still get the password of every userinfo section masked.
func Redact(s string) string {
	d, err := ParseDriver(s)
	if err != nil {
		return maskUserInfo(s)
	}
	if d.Password == "" {
		return s
	}
	d.Password = mask
	return Format(d)
}

// maskUserInfo replaces the password in each scheme://user:pass@ section.
func maskUserInfo(s string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "://")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i+3])
		s = s[i+3:]

		end := strings.IndexAny(s, "/?#")
		if end < 0 {
			end = len(s)
		}
		if at := strings.LastIndexByte(s[:end], '@'); at >= 0 {
			if user, _, ok := strings.Cut(s[:at], ":"); ok {
				b.WriteString(user + ":" + mask + "@")
				s = s[at+1:]
				continue
			}
		}
		b.WriteString(s[:end])
		s = s[end:]
	}
}

func parseUserInfo(d *Descriptor, info string) error {
	user, pass, hasPass := strings.Cut(info, ":")
	var err error
	if d.Username, err = url.PathUnescape(user); err != nil {
		return fmt.Errorf("%w: username: %v", ErrInvalidURI, err)
	}
	if hasPass {
		if d.Password, err = url.PathUnescape(pass); err != nil {
			return fmt.Errorf("%w: password: %v", ErrInvalidURI, err)
		}
	}
	return nil
}

// ParseHost parses host[:port], defaulting the port to DefaultPort.
// Bracketed IPv6 literals keep their brackets.
func ParseHost(s string) (Host, error) {
	if s == "" {
		return Host{}, fmt.Errorf("%w: empty host", ErrInvalidURI)
	}

	h := Host{Host: s, Port: DefaultPort}
	if i := strings.LastIndexByte(s, ':'); i >= 0 && !strings.HasSuffix(s, "]") {
		port, err := strconv.Atoi(s[i+1:])
		if err != nil || port <= 0 || port > 65535 {
			return Host{}, fmt.Errorf("%w: bad port in %q", ErrInvalidURI, s)
		}
		h.Host = s[:i]
		h.Port = port
	}
	return h, nil
}
