package asset

import "slices"

// Routing is the exclusive-override list restricting which bodies a report
// may be sent to. It is deliberately not reset on category change: callers
// must call RemoveOnlySend before re-evaluating.
type Routing struct {
	onlySend  string
	doNotSend []string
}

// OnlySend restricts the report to body alone, replacing any earlier only-send.
func (r *Routing) OnlySend(body string) {
	r.onlySend = body
}

// RemoveOnlySend drops the only-send override.
func (r *Routing) RemoveOnlySend() {
	r.onlySend = ""
}

// OnlySendTo returns the only-send body, or "".
func (r *Routing) OnlySendTo() string {
	return r.onlySend
}

// DoNotSend excludes body.
func (r *Routing) DoNotSend(body string) {
	if !slices.Contains(r.doNotSend, body) {
		r.doNotSend = append(r.doNotSend, body)
	}
}

// AllowSend lifts an earlier DoNotSend for body.
func (r *Routing) AllowSend(body string) {
	r.doNotSend = slices.DeleteFunc(r.doNotSend, func(b string) bool { return b == body })
}

// Excluded returns the do-not-send bodies.
func (r *Routing) Excluded() []string {
	return slices.Clone(r.doNotSend)
}

// Effective applies the overrides to the bodies servicing the location.
func (r *Routing) Effective(bodies []string) []string {
	if r.onlySend != "" {
		return []string{r.onlySend}
	}
	out := make([]string, 0, len(bodies))
	for _, b := range bodies {
		if !slices.Contains(r.doNotSend, b) {
			out = append(out, b)
		}
	}
	return out
}

func (r *Routing) clone() Routing {
	return Routing{onlySend: r.onlySend, doNotSend: slices.Clone(r.doNotSend)}
}

func (r *Routing) equal(o Routing) bool {
	return r.onlySend == o.onlySend && slices.Equal(r.doNotSend, o.doNotSend)
}
