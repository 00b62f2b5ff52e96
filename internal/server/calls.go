package server

import (
	"encoding/json"
	"time"
)

type CallStatus string

const (
	CallPending  CallStatus = "pending"
	CallActive   CallStatus = "active"
	CallDeclined CallStatus = "declined"
	CallEnded    CallStatus = "ended"
)

// callRetention is how long a terminal call record stays queryable before
// the sweeper drops it.
const callRetention = time.Minute

// Call is one signaling session pairing a caller and a callee. Terminal
// records (declined/ended) are kept with an EndedAt stamp until swept, so a
// second end of the same call is a provable no-op rather than a map miss.
type Call struct {
	Id        string
	Caller    *Client
	Callee    *Client
	MediaKind string
	Status    CallStatus
	CreatedAt time.Time
	EndedAt   time.Time
}

func (c *Call) terminal() bool {
	return c.Status == CallDeclined || c.Status == CallEnded
}

func (c *Call) participant(client *Client) bool {
	return c.Caller == client || c.Callee == client
}

func (c *Call) other(client *Client) *Client {
	if c.Caller == client {
		return c.Callee
	}
	return c.Caller
}

type callTable struct {
	calls map[string]*Call
}

func newCallTable() *callTable {
	return &callTable{calls: make(map[string]*Call)}
}

func (ct *callTable) add(call *Call) {
	ct.calls[call.Id] = call
}

func (ct *callTable) get(id string) (*Call, bool) {
	call, ok := ct.calls[id]
	return call, ok
}

// findLiveByParticipant scans for a pending or active call involving the
// connection.
func (ct *callTable) findLiveByParticipant(c *Client) *Call {
	for _, call := range ct.calls {
		if !call.terminal() && call.participant(c) {
			return call
		}
	}
	return nil
}

func (ct *callTable) liveForParticipant(c *Client) []*Call {
	var live []*Call
	for _, call := range ct.calls {
		if !call.terminal() && call.participant(c) {
			live = append(live, call)
		}
	}
	return live
}

// sweep drops terminal records older than the retention window.
func (ct *callTable) sweep(now time.Time) {
	for id, call := range ct.calls {
		if call.terminal() && now.Sub(call.EndedAt) > callRetention {
			delete(ct.calls, id)
		}
	}
}

func (cs *ChatServer) handleInitiateCall(c *Client, payload initiateCallPayload) {
	caller, ok := cs.presence.entry(c)
	if !ok {
		return
	}

	target := cs.presence.findOnline(payload.TargetUserId)
	if target == nil {
		// no live connection for the callee: tell the caller and do nothing
		// else, no call record is created
		c.queueEvent(&ServerEvent{
			Name: eventCallUnavailable,
			Data: callUnavailablePayload{TargetUserId: payload.TargetUserId},
		})
		return
	}

	callId, err := cs.generateCallId()
	if err != nil {
		cs.log.Println("generate call id:", err)
		return
	}

	call := &Call{
		Id:        callId,
		Caller:    c,
		Callee:    target,
		MediaKind: payload.CallType,
		Status:    CallPending,
		CreatedAt: Now(),
	}
	cs.calls.add(call)
	cs.stats.Incr("NumActiveCalls")

	target.queueEvent(&ServerEvent{
		Name: eventIncomingCall,
		Data: incomingCallPayload{
			CallerId:   c.id,
			CallerName: caller.username,
			CallType:   payload.CallType,
			CallId:     callId,
		},
	})
}

func (cs *ChatServer) handleCallResponse(c *Client, payload callResponsePayload) {
	call := cs.calls.findLiveByParticipant(c)
	if call == nil || call.Status != CallPending {
		return
	}

	// only the designated callee may accept or decline
	if call.Callee != c {
		cs.log.Printf("ignoring call response for %q from non-callee %q", call.Id, c.id)
		return
	}

	if payload.Accepted {
		call.Status = CallActive
		started := &ServerEvent{Name: eventCallStarted, Data: callStartedPayload{CallId: call.Id}}
		call.Caller.queueEvent(started)
		call.Callee.queueEvent(started)
		return
	}

	cs.terminateCall(call, CallDeclined)
	call.Caller.queueEvent(&ServerEvent{Name: eventCallDeclined})
}

// handleEndCall ends a pending or active call. Ending a call that is already
// terminal, unknown, or not ours is a silent no-op; both participants may
// race to end the same call.
func (cs *ChatServer) handleEndCall(c *Client, callId string) {
	call, ok := cs.calls.get(callId)
	if !ok || call.terminal() || !call.participant(c) {
		return
	}

	cs.terminateCall(call, CallEnded)
	call.other(c).queueEvent(&ServerEvent{Name: eventCallEnded})
}

// endCallsForClient synthesizes a termination for every live call involving
// a disconnecting connection, so the remaining party is never left waiting.
func (cs *ChatServer) endCallsForClient(c *Client) {
	for _, call := range cs.calls.liveForParticipant(c) {
		cs.terminateCall(call, CallEnded)
		call.other(c).queueEvent(&ServerEvent{Name: eventCallEnded})
	}
}

func (cs *ChatServer) terminateCall(call *Call, status CallStatus) {
	call.Status = status
	call.EndedAt = Now()
	cs.stats.Decr("NumActiveCalls")
}

// handleWebrtcSignal forwards an opaque signaling payload to the named
// connection, tagging it with the sender's connection id. The payload is
// never inspected.
func (cs *ChatServer) handleWebrtcSignal(c *Client, name string, payload webrtcSignalPayload) {
	target, ok := cs.clients[payload.TargetId]
	if !ok {
		return
	}

	data := map[string]any{"senderId": c.id}
	switch name {
	case eventWebrtcOffer:
		data["offer"] = json.RawMessage(payload.Offer)
	case eventWebrtcAnswer:
		data["answer"] = json.RawMessage(payload.Answer)
	case eventWebrtcIceCand:
		data["candidate"] = json.RawMessage(payload.Candidate)
	}

	target.queueEvent(&ServerEvent{Name: name, Data: data})
}
