package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/karasz/kelissuer/internal/errs"
)

// TaskKind enumerates the mutation and read operations the Dispatcher
// accepts. Values are wire-stable: adding a kind appends, never renumbers.
type TaskKind uint64

const (
	TaskIssue TaskKind = iota + 1
	TaskRevoke
	TaskRotate
	TaskGetKEL
	TaskGetTEL
	TaskSign
	TaskUpdateBackers
	TaskRespond
	TaskVerify
)

// Task is one unit of work submitted to the Dispatcher. Payload carries the
// operation-specific request in a per-kind encoding (raw message bytes, a
// digest string, or a JSON object), which the Dispatcher's handler decodes
// according to Kind.
type Task struct {
	ID      string
	Kind    TaskKind
	Payload []byte
}

// Result is the Dispatcher's response to a completed Task, correlated back
// to the caller by ID.
type Result struct {
	ID      string
	OK      bool
	Payload []byte
	ErrKind string
	ErrMsg  string
}

const (
	taskFieldID      = 1
	taskFieldKind    = 2
	taskFieldPayload = 3

	resultFieldID      = 1
	resultFieldOK      = 2
	resultFieldPayload = 3
	resultFieldErrKind = 4
	resultFieldErrMsg  = 5
)

// EncodeTask serializes t with the protobuf wire format. Push encodes every
// Task into this envelope before it enters the Dispatcher's bounded queue,
// and a worker decodes it back out before calling handle — the queue itself
// carries only these bytes, never a live Task value.
func EncodeTask(t Task) []byte {
	var b []byte
	b = protowire.AppendTag(b, taskFieldID, protowire.BytesType)
	b = protowire.AppendString(b, t.ID)
	b = protowire.AppendTag(b, taskFieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Kind))
	if len(t.Payload) > 0 {
		b = protowire.AppendTag(b, taskFieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, t.Payload)
	}
	return b
}

// DecodeTask is the inverse of EncodeTask.
func DecodeTask(b []byte) (Task, error) {
	var t Task
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Task{}, errs.New(errs.KindParse, "task: bad tag")
		}
		b = b[n:]
		switch {
		case num == taskFieldID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Task{}, errs.New(errs.KindParse, "task: bad id field")
			}
			t.ID = v
			b = b[n:]
		case num == taskFieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Task{}, errs.New(errs.KindParse, "task: bad kind field")
			}
			t.Kind = TaskKind(v)
			b = b[n:]
		case num == taskFieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Task{}, errs.New(errs.KindParse, "task: bad payload field")
			}
			t.Payload = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Task{}, errs.New(errs.KindParse, "task: unknown field")
			}
			b = b[n:]
		}
	}
	return t, nil
}

// EncodeResult serializes r with the protobuf wire format. A worker encodes
// the HandleResult into this envelope before sending it back on a task's
// reply channel; Push's caller-facing goroutine decodes it back into a
// Result.
func EncodeResult(r Result) []byte {
	var b []byte
	b = protowire.AppendTag(b, resultFieldID, protowire.BytesType)
	b = protowire.AppendString(b, r.ID)
	b = protowire.AppendTag(b, resultFieldOK, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(r.OK))
	if len(r.Payload) > 0 {
		b = protowire.AppendTag(b, resultFieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Payload)
	}
	if r.ErrKind != "" {
		b = protowire.AppendTag(b, resultFieldErrKind, protowire.BytesType)
		b = protowire.AppendString(b, r.ErrKind)
	}
	if r.ErrMsg != "" {
		b = protowire.AppendTag(b, resultFieldErrMsg, protowire.BytesType)
		b = protowire.AppendString(b, r.ErrMsg)
	}
	return b
}

// DecodeResult is the inverse of EncodeResult.
func DecodeResult(b []byte) (Result, error) {
	var r Result
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Result{}, errs.New(errs.KindParse, "result: bad tag")
		}
		b = b[n:]
		switch {
		case num == resultFieldID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Result{}, errs.New(errs.KindParse, "result: bad id field")
			}
			r.ID = v
			b = b[n:]
		case num == resultFieldOK && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Result{}, errs.New(errs.KindParse, "result: bad ok field")
			}
			r.OK = v != 0
			b = b[n:]
		case num == resultFieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Result{}, errs.New(errs.KindParse, "result: bad payload field")
			}
			r.Payload = append([]byte(nil), v...)
			b = b[n:]
		case num == resultFieldErrKind && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Result{}, errs.New(errs.KindParse, "result: bad err_kind field")
			}
			r.ErrKind = v
			b = b[n:]
		case num == resultFieldErrMsg && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Result{}, errs.New(errs.KindParse, "result: bad err_msg field")
			}
			r.ErrMsg = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Result{}, errs.New(errs.KindParse, "result: unknown field")
			}
			b = b[n:]
		}
	}
	return r, nil
}

func boolToVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
