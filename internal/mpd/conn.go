// Package mpd implements the daemon's one connection type to a Music
// Player Daemon server: dial, optional password auth, optional pub/sub
// subscription, command retry/reconnect, and the small set of
// convenience wrappers the dynamizer and HTTP surface need. It is built
// on github.com/fhs/gompd/v2/mpd, the actively maintained MPD client
// also used by go-musicfox and pms in the retrieval pack, rather than
// hand-rolling the line protocol cantatadyn.py's MPD class implemented
// against raw sockets.
package mpd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	log "github.com/sirupsen/logrus"
)

const (
	maxRetries  = 3
	retryDelay  = 500 * time.Millisecond
	inChannel   = "cantata-dynamic-in"
	outChannel  = "cantata-dynamic-out"
)

// Info describes how to reach an MPD server, mirroring ConnectionInfo
// from spec.md §3. Host may be a hostname or an absolute path to a
// UNIX-domain socket.
type Info struct {
	Host     string
	Port     int
	Password string
}

func (i Info) network() string {
	if strings.HasPrefix(i.Host, "/") {
		return "unix"
	}
	return "tcp"
}

func (i Info) addr() string {
	if i.network() == "unix" {
		return i.Host
	}
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// Conn is a single long-lived connection to an MPD server. It is not
// safe for concurrent use by multiple goroutines: the dynamizer and the
// HTTP surface each hold their own Conn, per the spec's two-connection
// concurrency model.
type Conn struct {
	info       Info
	serverMode bool
	clientID   string

	client *mpd.Client
}

// Dial connects to the MPD server described by info. When serverMode is
// true the connection additionally subscribes to the inbound control
// channel, matching the desktop-client server role in spec.md §4.1.
func Dial(info Info, serverMode bool) (*Conn, error) {
	c := &Conn{info: info, serverMode: serverMode}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) connect() error {
	var client *mpd.Client
	var err error
	if c.info.Password != "" {
		client, err = mpd.DialAuthenticated(c.info.network(), c.info.addr(), c.info.Password)
	} else {
		client, err = mpd.Dial(c.info.network(), c.info.addr())
	}
	if err != nil {
		return err
	}
	if c.serverMode {
		if err := client.Command("subscribe %s", inChannel).OK(); err != nil {
			client.Close()
			return err
		}
	}
	c.client = client
	return nil
}

func (c *Conn) reconnect() error {
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return c.connect()
}

// Close releases the underlying socket.
func (c *Conn) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// withRetry runs fn against the live client, reconnecting and retrying
// up to maxRetries times on transport failure, sleeping retryDelay
// between attempts. Persistent failure is returned to the caller, who
// treats it as "no data this round" per spec.md §7.
func (c *Conn) withRetry(fn func(*mpd.Client) error) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if c.client == nil {
			if err := c.reconnect(); err != nil {
				lastErr = err
				time.Sleep(retryDelay)
				continue
			}
		}
		err := fn(c.client)
		if err == nil {
			return nil
		}
		if !isTransportError(err) {
			// ACK / protocol error: not retried, surfaces as empty reply.
			return err
		}
		lastErr = err
		c.client.Close()
		c.client = nil
		time.Sleep(retryDelay)
	}
	log.WithError(lastErr).Warn("mpd: command failed after retries")
	return lastErr
}

func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return !strings.HasPrefix(msg, "ACK")
}

// Command issues an arbitrary command with format-style args (as
// gompd's Command does) and returns the attribute map of the reply. A
// persistent transport failure returns a nil map and the underlying
// error.
func (c *Conn) Command(format string, args ...interface{}) (mpd.Attrs, error) {
	var attrs mpd.Attrs
	err := c.withRetry(func(client *mpd.Client) error {
		var innerErr error
		attrs, innerErr = client.Command(format, args...).Attrs()
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

// CommandOK issues a command expecting only an OK/ACK reply, with no
// attributes to parse (add, delete, clear, play, setActive-style
// writes).
func (c *Conn) CommandOK(format string, args ...interface{}) error {
	return c.withRetry(func(client *mpd.Client) error {
		return client.Command(format, args...).OK()
	})
}

// CommandList issues a fully pre-formed command line (find, search,
// playlistinfo, sticker find, a compiled rule expression) whose reply
// is a sequence of attribute blocks. cmd is passed to gompd as a single
// Quoted argument behind a literal "%s" format rather than as the
// format string itself, so a literal '%' inside cmd — e.g. from a tag
// value embedded in a compiled rule expression — is never reinterpreted
// as a format verb.
func (c *Conn) CommandList(cmd string) ([]mpd.Attrs, error) {
	var list []mpd.Attrs
	err := c.withRetry(func(client *mpd.Client) error {
		var innerErr error
		list, innerErr = client.Command("%s", mpd.Quoted(cmd)).AttrsList("file")
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Query issues command and returns every value of key across the
// reply's attribute blocks, in document order; it implements
// rules.Querier for the rule engine's live genre/artist lookups.
func (c *Conn) Query(command, key string) ([]string, error) {
	list, err := c.CommandList(command)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, attrs := range list {
		if v, ok := attrs[key]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Status returns the parsed "status" reply.
func (c *Conn) Status() (mpd.Attrs, error) {
	return c.Command("status")
}

// Stats returns the parsed "stats" reply.
func (c *Conn) Stats() (mpd.Attrs, error) {
	return c.Command("stats")
}

// Playlist returns the current queue's file list (excluding the
// trailing OK, which Command already strips).
func (c *Conn) Playlist() ([]mpd.Attrs, error) {
	return c.CommandList("playlistinfo")
}

// Clear empties the play queue.
func (c *Conn) Clear() error {
	return c.CommandOK("clear")
}

// Delete removes the track at queue position idx.
func (c *Conn) Delete(idx int) error {
	return c.CommandOK("delete %d", idx)
}

// Add appends uri to the play queue. uri is passed as a plain string
// argument; gompd's Command quotes string arguments itself (escaping
// backslash and embedded double-quote per spec.md §6), so it must not
// be pre-quoted here.
func (c *Conn) Add(uri string) error {
	return c.CommandOK("add %s", uri)
}

// Play starts playback at queue position pos.
func (c *Conn) Play(pos int) error {
	return c.CommandOK("play %d", pos)
}

// ListGenres returns the distinct genre tag values known to MPD.
func (c *Conn) ListGenres() ([]string, error) {
	return c.Query("list genre", "Genre")
}

// ListArtists returns the distinct artist tag values known to MPD.
func (c *Conn) ListArtists() ([]string, error) {
	return c.Query("list artist", "Artist")
}

// FindFiles runs a find/search-style query and returns matching file
// paths.
func (c *Conn) FindFiles(expr string) ([]string, error) {
	list, err := c.CommandList(expr)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		if f, ok := a["file"]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// StickerGetRating returns the "rating" sticker on file, or (0, false)
// if unset or unparsable.
func (c *Conn) StickerGetRating(file string) (int, bool) {
	attrs, err := c.Command("sticker get song %s rating", file)
	if err != nil {
		return 0, false
	}
	v, ok := attrs["sticker"]
	if !ok {
		return 0, false
	}
	// stickers are returned as "rating=<value>"
	parts := strings.SplitN(v, "=", 2)
	if len(parts) != 2 {
		return 0, false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// StickerFindRatings returns the set of files whose "rating" sticker
// parses and is non-empty, alongside its parsed value.
func (c *Conn) StickerFindRatings() (map[string]int, error) {
	list, err := c.CommandList(`sticker find song "" rating`)
	if err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, attrs := range list {
		file, ok := attrs["file"]
		if !ok {
			continue
		}
		v, ok := attrs["sticker"]
		if !ok {
			continue
		}
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			continue
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		out[file] = n
	}
	return out, nil
}

// LsinfoDuration returns the "Time" field (seconds) reported by lsinfo
// for file.
func (c *Conn) LsinfoDuration(file string) (int, bool) {
	attrs, err := c.Command("lsinfo %s", file)
	if err != nil {
		return 0, false
	}
	v, ok := attrs["Time"]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SendMessage posts payload to channel (cantata-dynamic-out, optionally
// suffixed -<client_id>).
func (c *Conn) SendMessage(channel, payload string) error {
	return c.CommandOK("sendmessage %s %s", channel, payload)
}

// OutChannel returns the outbound channel name, optionally targeted at
// a single client.
func OutChannel(clientID string) string {
	if clientID == "" {
		return outChannel
	}
	return outChannel + "-" + clientID
}

// ReadMessages drains pending pub/sub messages addressed to this
// connection's subscriptions.
func (c *Conn) ReadMessages() ([]mpd.Attrs, error) {
	return c.CommandList("readmessages")
}

// Idle blocks until MPD reports a change in one of the given
// subsystems. The reply is read as a single attribute map, so the
// returned slice holds at most one changed subsystem (the last one
// reported), or is empty. In server mode the
// caller passes "message" alongside "player"/"playlist" so control
// messages wake the loop too.
func (c *Conn) Idle(subsystems ...string) ([]string, error) {
	var changed []string
	err := c.withRetry(func(client *mpd.Client) error {
		list, innerErr := client.Command("idle %s", mpd.Quoted(strings.Join(subsystems, " "))).Attrs()
		if innerErr != nil {
			return innerErr
		}
		if v, ok := list["changed"]; ok {
			changed = []string{v}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// QuoteArg double-quotes s, escaping backslash and embedded quotes per
// spec.md §6. It is for callers building a compound command line by
// hand; nothing in this module calls it outside its test (the rule
// engine formats tag values into its expressions itself, without
// escaping) — gompd's Command already quotes plain string arguments
// passed through its own %s/%d placeholders, so callers going through
// Command/CommandOK/CommandList must not call this on those arguments.
func QuoteArg(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
