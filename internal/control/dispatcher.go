// Package control decodes in-band pub/sub messages from MPD's
// cantata-dynamic-in channel and routes them to rule-management
// actions, per spec.md §4.6. It never raises: every recognized
// command responds with a numeric status code, and unknown verbs
// answer with code 11.
package control

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kungpfui/cantatadyn/internal/cantata"
	"github.com/kungpfui/cantatadyn/internal/status"
)

// Error codes, per spec.md §4.6.
const (
	codeOK                  = "0"
	codeEmptyName           = "1"
	codeIllegalName         = "2"
	codeWriteFailed         = "3"
	codeUnlinkFailed        = "4"
	codeUnknownControlVerb  = "5"
	codeUnlinkActiveFailed  = "6"
	codeActiveNotSymlink    = "7"
	codeSymlinkFailed       = "8"
	codeTargetMissing       = "9"
	codeTooFewArgs          = "10"
	codeUnknownVerb         = "11"
)

// QueueClearer is the minimal surface the dynamizer's MPD connection
// exposes to "control:clear".
type QueueClearer interface {
	Clear() error
}

// Dynamizer is the minimal surface the dispatcher needs to toggle
// dynamic mode and invalidate the candidate pool on rule changes,
// satisfied by *dynamizer.Loop without an import cycle.
type Dynamizer interface {
	SetDynamic(on bool)
	InvalidatePool()
}

// Dispatcher mutates the on-disk rule-file store and the shared status
// facade in response to decoded control messages.
type Dispatcher struct {
	RulesDir   string
	ActiveLink string
	Status     *status.Facade
	Queue      QueueClearer
	Loop       Dynamizer
}

// Dispatch decodes one "message: <payload>" line's payload
// (colon-delimited: <command>:<client_id>:<arg1>[:<arg2>...]) and
// returns the reply text to post back on the outbound channel, plus
// the client id it should be targeted at.
func (d *Dispatcher) Dispatch(payload string) (clientID, reply string) {
	parts := strings.Split(payload, ":")
	if len(parts) < 2 {
		return "", codeTooFewArgs
	}
	command, clientID := parts[0], parts[1]
	args := parts[2:]

	switch {
	case strings.HasSuffix(command, "status"):
		return clientID, d.doStatus()
	case strings.HasSuffix(command, "list"):
		return clientID, d.doList()
	case strings.HasPrefix(command, "get"):
		return clientID, d.doGet(args)
	case strings.HasPrefix(command, "save"):
		return clientID, d.doSave(args)
	case strings.HasPrefix(command, "delete"):
		return clientID, d.doDelete(args)
	case strings.HasPrefix(command, "setActive"):
		return clientID, d.doSetActive(args)
	case strings.HasPrefix(command, "control"):
		return clientID, d.doControl(args)
	default:
		return clientID, codeUnknownVerb
	}
}

func (d *Dispatcher) doStatus() string {
	s := d.Status.Snapshot()
	return strings.Join([]string{
		string(s.State),
		strconv.FormatInt(s.Timestamp, 10),
		s.ActiveName,
	}, ":")
}

func (d *Dispatcher) doList() string {
	entries, err := os.ReadDir(d.RulesDir)
	if err != nil {
		return codeOK
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".rules") {
			names = append(names, strings.TrimSuffix(e.Name(), ".rules"))
		}
	}
	sort.Strings(names)
	return codeOK + ":" + strings.Join(names, ":")
}

func (d *Dispatcher) doGet(args []string) string {
	if len(args) < 1 {
		return codeTooFewArgs
	}
	name := args[0]
	if err := validateName(name); err != "" {
		return err + ":" + name
	}
	data, err := os.ReadFile(filepath.Join(d.RulesDir, name+".rules"))
	if err != nil {
		return codeTargetMissing + ":" + name
	}
	return codeOK + ":" + name + ":" + cantata.Encode(string(data))
}

func (d *Dispatcher) doSave(args []string) string {
	if len(args) < 2 {
		return codeTooFewArgs
	}
	name, encoded := args[0], args[1]
	if err := validateName(name); err != "" {
		return err + ":" + name
	}
	content := cantata.Decode(encoded)
	if err := os.WriteFile(filepath.Join(d.RulesDir, name+".rules"), []byte(content), 0o644); err != nil {
		return codeWriteFailed + ":" + name
	}
	if d.Status != nil {
		s := d.Status.Snapshot()
		d.Status.Touch(s.ActiveName, s.Dynamic)
		if d.Loop != nil && name == s.ActiveName {
			d.Loop.InvalidatePool()
		}
	}
	return codeOK + ":" + name
}

func (d *Dispatcher) doDelete(args []string) string {
	if len(args) < 1 {
		return codeTooFewArgs
	}
	name := args[0]
	if err := validateName(name); err != "" {
		return err + ":" + name
	}
	path := filepath.Join(d.RulesDir, name+".rules")
	if err := os.Remove(path); err != nil {
		return codeUnlinkFailed + ":" + name
	}
	if name == activeName(d.ActiveLink) {
		os.Remove(d.ActiveLink)
		if d.Loop != nil {
			d.Loop.SetDynamic(false)
		}
		if d.Status != nil {
			d.Status.SetState(status.Idle)
		}
	}
	return codeOK + ":" + name
}

func (d *Dispatcher) doSetActive(args []string) string {
	if len(args) < 1 {
		return codeTooFewArgs
	}
	name := args[0]
	if err := validateName(name); err != "" {
		return err + ":" + name
	}
	target := filepath.Join(d.RulesDir, name+".rules")
	if _, err := os.Stat(target); err != nil {
		return codeTargetMissing + ":" + name
	}

	already := name == activeName(d.ActiveLink)
	if !already {
		if info, err := os.Lstat(d.ActiveLink); err == nil {
			if info.Mode()&os.ModeSymlink == 0 {
				return codeActiveNotSymlink + ":" + name
			}
			if err := os.Remove(d.ActiveLink); err != nil {
				return codeUnlinkActiveFailed + ":" + name
			}
		}
		if err := os.Symlink(target, d.ActiveLink); err != nil {
			return codeSymlinkFailed + ":" + name
		}
	}

	start := len(args) > 1 && (args[1] == "start" || args[1] == "1")
	wasIdle := d.Status != nil && d.Status.Snapshot().State == status.Idle
	if d.Status != nil {
		d.Status.Touch(name, start || d.Status.Snapshot().Dynamic)
	}
	if d.Loop != nil {
		d.Loop.InvalidatePool()
		if start && wasIdle {
			d.Loop.SetDynamic(true)
		}
	}
	return codeOK + ":" + name
}

func (d *Dispatcher) doControl(args []string) string {
	if len(args) < 1 {
		return codeTooFewArgs
	}
	switch args[0] {
	case "start":
		if d.Loop != nil {
			d.Loop.SetDynamic(true)
		}
		if d.Status != nil {
			s := d.Status.Snapshot()
			d.Status.Touch(s.ActiveName, true)
		}
	case "stop":
		if d.Loop != nil {
			d.Loop.SetDynamic(false)
		}
		if d.Status != nil {
			s := d.Status.Snapshot()
			d.Status.Touch(s.ActiveName, false)
		}
	case "clear":
		if d.Queue != nil {
			d.Queue.Clear()
		}
	default:
		return codeUnknownControlVerb
	}
	return codeOK
}

// validateName returns a non-empty error code string if name is
// unusable, or "" if it's acceptable.
func validateName(name string) string {
	if name == "" {
		return codeEmptyName
	}
	if strings.Contains(name, "/") || strings.HasSuffix(name, ".rules") {
		return codeIllegalName
	}
	return ""
}

func activeName(activeLink string) string {
	target, err := os.Readlink(activeLink)
	if err != nil {
		return ""
	}
	base := filepath.Base(target)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
