package sipdialog

import (
	"log/slog"
	"time"
)

// State is a dialog's position in the FSM of spec §4.2.
type State int

const (
	StateInit State = iota
	StateTrying
	StateEstablished
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateTrying:
		return "TRYING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "INIT"
	}
}

// Dialog is the one-per-call-attempt state spec.md §3 describes. A
// session holds a single Dialog for its lifetime; it is created on the
// first SIP packet and never destroyed during a run.
type Dialog struct {
	State       State
	CallID      string
	LocalTag    string
	RemoteTag   string
	LastSIPSeen time.Time
	LastBYESeen time.Time // zero until the first BYE/200-to-BYE is observed
	byeSeen     bool

	// Streams is the set of SDP-declared stream descriptors observed on
	// this dialog so far. Monotonic: entries are appended, never removed.
	Streams []*StreamDescriptor

	unhandledCount int
}

// NewDialog returns a dialog in the INIT state.
func NewDialog() *Dialog {
	return &Dialog{State: StateInit}
}

// Observe feeds one parsed SIP message through the FSM at time now,
// applying the transition table in spec §4.2. SDP bodies are parsed and
// their stream descriptors appended regardless of whether the message
// itself causes a state transition.
func (d *Dialog) Observe(msg *Message, now time.Time, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	if d.CallID == "" {
		d.CallID = msg.CallID
	}
	if msg.FromTag != "" && d.LocalTag == "" {
		d.LocalTag = msg.FromTag
	}
	if msg.ToTag != "" && d.RemoteTag == "" {
		d.RemoteTag = msg.ToTag
	}
	d.LastSIPSeen = now

	d.applyTransition(msg, now, log)

	if msg.Body != "" {
		for _, desc := range ParseSDP(msg.Body) {
			if len(d.Streams) >= MaxStreamDescriptors {
				break
			}
			d.Streams = append(d.Streams, desc)
		}
	}
}

func (d *Dialog) applyTransition(msg *Message, now time.Time, log *slog.Logger) {
	from := d.State

	switch {
	case d.State == StateInit && msg.IsRequest && msg.Method == "INVITE":
		d.State = StateTrying

	case d.State == StateTrying && !msg.IsRequest && msg.StatusCode == 200 && msg.CSeqMethod == "INVITE":
		d.State = StateEstablished

	case msg.IsRequest && msg.Method == "BYE":
		d.markBYE(now)
		d.State = StateTerminated

	case !msg.IsRequest && msg.StatusCode == 200 && msg.CSeqMethod == "BYE":
		d.markBYE(now)
		d.State = StateTerminated

	case msg.IsRequest && msg.Method == "CANCEL":
		d.State = StateTerminated

	case d.State == StateTrying && !msg.IsRequest && isEarlyFailure(msg.StatusCode):
		d.State = StateTerminated

	default:
		d.unhandledCount++
		log.Debug("sip: message observed without transition",
			"subsystem", "STATE", "state", d.State.String(), "method", msg.Method, "status", msg.StatusCode)
		return
	}

	if d.State != from {
		log.Debug("sip: dialog transition",
			"subsystem", "STATE", "from", from.String(), "to", d.State.String(), "call_id", d.CallID)
	}
}

func (d *Dialog) markBYE(now time.Time) {
	if !d.byeSeen {
		d.byeSeen = true
		d.LastBYESeen = now
	}
}

// BYESeen reports whether a BYE (request or 200-to-BYE) has occurred.
func (d *Dialog) BYESeen() bool { return d.byeSeen }

func isEarlyFailure(code int) bool {
	switch code {
	case 486, 487, 603:
		return true
	default:
		return false
	}
}
