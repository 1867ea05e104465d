// Package dispatch implements the bounded task Dispatcher that serializes
// mutating calls to the Controller and fans out read calls, over a bounded
// FIFO with a worker pool. Grounded on the original source's
// task_manager/mod.rs and task/mod.rs (AddressedTask, HandleResult,
// Task.handle), with its one acknowledged defect fixed: the original
// listener loop busy-polls an ArrayQueue in a tight `loop { process_queue() }`;
// this port blocks on a channel receive instead, so idle workers cost
// nothing.
package dispatch

import (
	"encoding/json"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/karasz/kelissuer/internal/controller"
	"github.com/karasz/kelissuer/internal/errs"
	"github.com/karasz/kelissuer/internal/model"
	"github.com/karasz/kelissuer/internal/wire"
)

// backerUpdate is the JSON payload a TaskUpdateBackers task carries.
type backerUpdate struct {
	Add    []model.Prefix `json:"add,omitempty"`
	Remove []model.Prefix `json:"remove,omitempty"`
}

// verifyRequest is the JSON payload a TaskVerify task carries.
type verifyRequest struct {
	Message   []byte          `json:"message"`
	Signature model.Signature `json:"signature"`
}

// addressedTask pairs a protobuf-wire-encoded Task with the channel its
// protobuf-wire-encoded HandleResult is delivered on, mirroring the
// original source's AddressedTask. The queue carries only encoded bytes —
// Push encodes before enqueuing, a worker decodes before calling handle and
// re-encodes the Result before replying, and Push's caller-facing goroutine
// decodes that back into a wire.Result.
type addressedTask struct {
	payload []byte
	reply   chan []byte
}

// Dispatcher owns the bounded queue and worker pool fronting a Controller.
// It is the only concurrency surface over the dual log: every mutation
// goes through Push, which enqueues or fails synchronously with QueueFull.
type Dispatcher struct {
	controller *controller.Controller

	queue chan addressedTask

	// rw gives mutating tasks exclusive access to the Controller and lets
	// read tasks share it.
	rw sync.RWMutex

	wg     sync.WaitGroup
	stop   chan struct{}
	closed sync.Once

	log *zap.SugaredLogger
}

// New builds a Dispatcher with a bounded queue of capacity n and a pool of
// w worker goroutines, and starts the pool.
func New(c *controller.Controller, n, w int) *Dispatcher {
	d := &Dispatcher{
		controller: c,
		queue:      make(chan addressedTask, n),
		stop:       make(chan struct{}),
		log:        zap.NewNop().Sugar(),
	}
	for i := 0; i < w; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// SetLogger attaches a structured logger, used to log queue-full rejections
// at Warn. It does not propagate to the Controller — callers that want the
// Controller's own mutation logging should call Controller.SetLogger
// directly, since a Controller may outlive or be shared beyond one
// Dispatcher.
func (d *Dispatcher) SetLogger(log *zap.SugaredLogger) {
	d.log = log
}

// worker blocks on the queue channel and the stop signal; it never polls.
func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case at, ok := <-d.queue:
			if !ok {
				return
			}
			task, err := wire.DecodeTask(at.payload)
			var res wire.Result
			if err != nil {
				res = failure("", errs.Wrap(errs.KindParse, err))
			} else {
				res = d.handle(task)
			}
			at.reply <- wire.EncodeResult(res)
		case <-d.stop:
			return
		}
	}
}

// Push encodes t into the protobuf-wire envelope and enqueues it, returning
// a channel that will receive exactly one decoded Result. It fails
// synchronously with errs.QueueFull if the bounded queue is already at
// capacity — no implicit backpressure.
func (d *Dispatcher) Push(t wire.Task) (<-chan wire.Result, error) {
	rawReply := make(chan []byte, 1)
	select {
	case d.queue <- addressedTask{payload: wire.EncodeTask(t), reply: rawReply}:
	default:
		d.log.Warnw("queue full", "task_id", t.ID, "task_kind", t.Kind)
		return nil, errs.QueueFull
	}

	reply := make(chan wire.Result, 1)
	go func() {
		raw := <-rawReply
		res, err := wire.DecodeResult(raw)
		if err != nil {
			reply <- failure(t.ID, errs.Wrap(errs.KindParse, err))
			return
		}
		reply <- res
	}()
	return reply, nil
}

// Stop drains in-flight workers and shuts the pool down. Tasks still queued
// when Stop is called may or may not be picked up; those that are not
// never receive a reply.
func (d *Dispatcher) Stop() {
	d.closed.Do(func() {
		close(d.stop)
	})
	d.wg.Wait()
}

// handle executes one task against the Controller, converting any error
// into a HandleResult::Failure-equivalent rather than letting it escape —
// the specification calls out the original source's task-handler unwrap()
// panics as exactly the defect this must not reproduce.
func (d *Dispatcher) handle(t wire.Task) wire.Result {
	switch t.Kind {
	case wire.TaskGetKEL, wire.TaskGetTEL, wire.TaskSign, wire.TaskVerify:
		d.rw.RLock()
		defer d.rw.RUnlock()
	default:
		d.rw.Lock()
		defer d.rw.Unlock()
	}

	switch t.Kind {
	case wire.TaskIssue:
		sig, err := d.controller.Issue(t.Payload)
		if err != nil {
			return failure(t.ID, err)
		}
		return wire.Result{ID: t.ID, OK: true, Payload: sig.Raw}

	case wire.TaskRevoke:
		digest, err := model.ParseDigest(string(t.Payload))
		if err != nil {
			return failure(t.ID, err)
		}
		if err := d.controller.Revoke(digest); err != nil {
			return failure(t.ID, err)
		}
		return wire.Result{ID: t.ID, OK: true}

	case wire.TaskRotate:
		rot, err := d.controller.Rotate()
		if err != nil {
			return failure(t.ID, err)
		}
		return wire.Result{ID: t.ID, OK: true, Payload: []byte(strconv.FormatUint(rot.Event.Sn, 10))}

	case wire.TaskGetKEL:
		kerl, err := d.controller.GetKERL()
		if err != nil {
			return failure(t.ID, err)
		}
		return wire.Result{ID: t.ID, OK: true, Payload: kerl}

	case wire.TaskGetTEL:
		digest, err := model.ParseDigest(string(t.Payload))
		if err != nil {
			return failure(t.ID, err)
		}
		telBytes, err := d.controller.GetTel(digest)
		if err != nil {
			return failure(t.ID, err)
		}
		return wire.Result{ID: t.ID, OK: true, Payload: telBytes}

	case wire.TaskSign:
		sig, err := d.controller.Sign(t.Payload)
		if err != nil {
			return failure(t.ID, err)
		}
		return wire.Result{ID: t.ID, OK: true, Payload: sig.Raw}

	case wire.TaskUpdateBackers:
		var req backerUpdate
		if err := json.Unmarshal(t.Payload, &req); err != nil {
			return failure(t.ID, errs.Wrap(errs.KindParse, err))
		}
		if err := d.controller.UpdateBackers(req.Add, req.Remove); err != nil {
			return failure(t.ID, err)
		}
		return wire.Result{ID: t.ID, OK: true}

	case wire.TaskRespond:
		resp, err := d.controller.Respond(t.Payload)
		if err != nil {
			return failure(t.ID, err)
		}
		return wire.Result{ID: t.ID, OK: true, Payload: resp}

	case wire.TaskVerify:
		var req verifyRequest
		if err := json.Unmarshal(t.Payload, &req); err != nil {
			return failure(t.ID, errs.Wrap(errs.KindParse, err))
		}
		ok, err := d.controller.Verify(req.Message, req.Signature)
		if err != nil {
			return failure(t.ID, err)
		}
		payload := []byte{0}
		if ok {
			payload[0] = 1
		}
		return wire.Result{ID: t.ID, OK: true, Payload: payload}

	default:
		return failure(t.ID, errs.Newf(errs.KindValidation, "unknown task kind %d", t.Kind))
	}
}

func failure(id string, err error) wire.Result {
	kind := errs.KindGeneric
	var e *errs.Error
	if as, ok := err.(*errs.Error); ok {
		e = as
		kind = e.Kind
	}
	return wire.Result{ID: id, OK: false, ErrKind: string(kind), ErrMsg: err.Error()}
}
