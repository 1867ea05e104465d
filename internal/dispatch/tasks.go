package dispatch

import (
	"encoding/json"
	"sync/atomic"

	"github.com/karasz/kelissuer/internal/errs"
	"github.com/karasz/kelissuer/internal/model"
	"github.com/karasz/kelissuer/internal/wire"
)

var taskSeq atomic.Uint64

func nextTaskID() string {
	return "t" + itoa(taskSeq.Add(1))
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// PushIssue enqueues an Issue(message) task.
func (d *Dispatcher) PushIssue(message []byte) (<-chan wire.Result, error) {
	return d.Push(wire.Task{ID: nextTaskID(), Kind: wire.TaskIssue, Payload: message})
}

// PushRevoke enqueues a Revoke(digest) task.
func (d *Dispatcher) PushRevoke(digest model.Digest) (<-chan wire.Result, error) {
	return d.Push(wire.Task{ID: nextTaskID(), Kind: wire.TaskRevoke, Payload: []byte(digest.String())})
}

// PushRotate enqueues a Rotate task.
func (d *Dispatcher) PushRotate() (<-chan wire.Result, error) {
	return d.Push(wire.Task{ID: nextTaskID(), Kind: wire.TaskRotate})
}

// PushGetKEL enqueues a GetKel task.
func (d *Dispatcher) PushGetKEL() (<-chan wire.Result, error) {
	return d.Push(wire.Task{ID: nextTaskID(), Kind: wire.TaskGetKEL})
}

// PushGetTEL enqueues a GetTel(digest) task.
func (d *Dispatcher) PushGetTEL(digest model.Digest) (<-chan wire.Result, error) {
	return d.Push(wire.Task{ID: nextTaskID(), Kind: wire.TaskGetTEL, Payload: []byte(digest.String())})
}

// PushSign enqueues a Sign(bytes) task.
func (d *Dispatcher) PushSign(message []byte) (<-chan wire.Result, error) {
	return d.Push(wire.Task{ID: nextTaskID(), Kind: wire.TaskSign, Payload: message})
}

// PushUpdateBackers enqueues an UpdateBackers(add, remove) task.
func (d *Dispatcher) PushUpdateBackers(add, remove []model.Prefix) (<-chan wire.Result, error) {
	payload, err := json.Marshal(backerUpdate{Add: add, Remove: remove})
	if err != nil {
		return nil, errs.Wrap(errs.KindParse, err)
	}
	return d.Push(wire.Task{ID: nextTaskID(), Kind: wire.TaskUpdateBackers, Payload: payload})
}

// PushRespond enqueues a Respond(foreignStream) task.
func (d *Dispatcher) PushRespond(foreignStream []byte) (<-chan wire.Result, error) {
	return d.Push(wire.Task{ID: nextTaskID(), Kind: wire.TaskRespond, Payload: foreignStream})
}

// PushVerify enqueues a Verify(message, sig) task. The Result's Payload is a
// single byte, 1 for a valid signature and 0 otherwise.
func (d *Dispatcher) PushVerify(message []byte, sig model.Signature) (<-chan wire.Result, error) {
	payload, err := json.Marshal(verifyRequest{Message: message, Signature: sig})
	if err != nil {
		return nil, errs.Wrap(errs.KindParse, err)
	}
	return d.Push(wire.Task{ID: nextTaskID(), Kind: wire.TaskVerify, Payload: payload})
}
