/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/bits-and-blooms/bitset"
)

// maxString bounds any single length-prefixed string field. It exists only
// to keep a corrupt or hostile length prefix from driving an unbounded
// allocation; the wire format itself has no such limit.
const maxString = 16 << 20

// RequestTag distinguishes the two Request variants.
type RequestTag uint32

const (
	TagStop RequestTag = iota
	TagExec
)

// Request is the first datagram of every client turn.
type Request struct {
	Tag      RequestTag
	BodySize uint64 // valid only when Tag == TagExec
}

// EnvVar is one (name, value) pair of ExecBody.env.
type EnvVar struct {
	Name  string
	Value string
}

// ExecBody is the second datagram following a TagExec Request.
type ExecBody struct {
	Program      string
	Argv         []string
	Cwd          string
	Env          []EnvVar
	StartupFlags *bitset.BitSet
	IOFlags      *bitset.BitSet
	Pgid         int32
	Uid          int32
	Gid          int32
	Deathsig     int32
	Connsig      int32
}

// StartedProcess is the server's reply to a parsed Exec request.
type StartedProcess struct {
	Success bool
	Message string
	Errno   int32
	Pid     int32
}

// Signal is a client->server datagram sent while a child is running.
// Positive values target the process; negative values target its group.
type Signal int32

// ResultTag distinguishes the three ProcessResult variants.
type ResultTag uint32

const (
	ResultUndefined ResultTag = iota
	ResultExit
	ResultSignal
)

// ProcessResult is the final server->client datagram for a connection.
type ProcessResult struct {
	Tag     ResultTag
	Payload int32 // exit code for ResultExit, signal number for ResultSignal
}

func writeString(w *bytes.Buffer, s string) error {
	if len(s) > maxString {
		return ErrorStringTooLarge.Error(nil)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}

	_, err := w.WriteString(s)
	return err
}

func readString(r *bytes.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", ErrorShortBuffer.Error(err)
	}

	if n > maxString || int64(n) > int64(r.Len()) {
		return "", ErrorStringTooLarge.Error(nil)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", ErrorShortBuffer.Error(err)
	}

	return string(buf), nil
}

// EncodeRequest encodes a Request into a single self-contained datagram.
func EncodeRequest(req Request) ([]byte, error) {
	buf := &bytes.Buffer{}

	if err := binary.Write(buf, binary.LittleEndian, req.Tag); err != nil {
		return nil, err
	}

	if req.Tag == TagExec {
		if err := binary.Write(buf, binary.LittleEndian, req.BodySize); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// DecodeRequest decodes a single Request datagram.
func DecodeRequest(data []byte) (Request, error) {
	r := bytes.NewReader(data)

	var tag RequestTag
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return Request{}, ErrorShortBuffer.Error(err)
	}

	switch tag {
	case TagStop:
		return Request{Tag: TagStop}, nil
	case TagExec:
		var size uint64
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return Request{}, ErrorShortBuffer.Error(err)
		}
		return Request{Tag: TagExec, BodySize: size}, nil
	default:
		return Request{}, ErrorInvalidTag.Error(nil)
	}
}

// EncodeExecBody encodes the ExecBody datagram that must follow a TagExec
// Request.
func EncodeExecBody(b ExecBody) ([]byte, error) {
	buf := &bytes.Buffer{}

	if err := writeString(buf, b.Program); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.LittleEndian, uint64(len(b.Argv))); err != nil {
		return nil, err
	}
	for _, a := range b.Argv {
		if err := writeString(buf, a); err != nil {
			return nil, err
		}
	}

	if err := writeString(buf, b.Cwd); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.LittleEndian, uint64(len(b.Env))); err != nil {
		return nil, err
	}
	for _, e := range b.Env {
		if err := writeString(buf, e.Name); err != nil {
			return nil, err
		}
		if err := writeString(buf, e.Value); err != nil {
			return nil, err
		}
	}

	if err := binary.Write(buf, binary.LittleEndian, bitsetToUint32(b.StartupFlags)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, bitsetToUint32(b.IOFlags)); err != nil {
		return nil, err
	}

	for _, v := range []int32{b.Pgid, b.Uid, b.Gid, b.Deathsig, b.Connsig} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// DecodeExecBody decodes an ExecBody datagram. expectSize, when non-zero, is
// the body_size carried by the preceding Request header; a mismatch is a
// protocol error per spec invariant 1 rather than a silent truncation.
func DecodeExecBody(data []byte, expectSize uint64) (ExecBody, error) {
	if expectSize != 0 && uint64(len(data)) != expectSize {
		return ExecBody{}, ErrorBodySizeMismatch.Error(nil)
	}

	r := bytes.NewReader(data)
	var b ExecBody
	var err error

	if b.Program, err = readString(r); err != nil {
		return ExecBody{}, err
	}
	if b.Program == "" {
		return ExecBody{}, ErrorInvalidString.Error(nil)
	}

	var argc uint64
	if err = binary.Read(r, binary.LittleEndian, &argc); err != nil {
		return ExecBody{}, ErrorShortBuffer.Error(err)
	}
	b.Argv = make([]string, 0, argc)
	for i := uint64(0); i < argc; i++ {
		a, err := readString(r)
		if err != nil {
			return ExecBody{}, err
		}
		b.Argv = append(b.Argv, a)
	}

	if b.Cwd, err = readString(r); err != nil {
		return ExecBody{}, err
	}

	var envc uint64
	if err = binary.Read(r, binary.LittleEndian, &envc); err != nil {
		return ExecBody{}, ErrorShortBuffer.Error(err)
	}
	b.Env = make([]EnvVar, 0, envc)
	for i := uint64(0); i < envc; i++ {
		name, err := readString(r)
		if err != nil {
			return ExecBody{}, err
		}
		value, err := readString(r)
		if err != nil {
			return ExecBody{}, err
		}
		b.Env = append(b.Env, EnvVar{Name: name, Value: value})
	}

	var startup, ioFlags uint32
	if err = binary.Read(r, binary.LittleEndian, &startup); err != nil {
		return ExecBody{}, ErrorShortBuffer.Error(err)
	}
	if err = binary.Read(r, binary.LittleEndian, &ioFlags); err != nil {
		return ExecBody{}, ErrorShortBuffer.Error(err)
	}
	b.StartupFlags = uint32ToBitset(startup)
	b.IOFlags = uint32ToBitset(ioFlags)

	vals := make([]*int32, 5)
	vals[0], vals[1], vals[2], vals[3], vals[4] = &b.Pgid, &b.Uid, &b.Gid, &b.Deathsig, &b.Connsig
	for _, v := range vals {
		if err = binary.Read(r, binary.LittleEndian, v); err != nil {
			return ExecBody{}, ErrorShortBuffer.Error(err)
		}
	}

	return b, nil
}

// EncodeStartedProcess encodes a StartedProcess reply.
func EncodeStartedProcess(s StartedProcess) ([]byte, error) {
	buf := &bytes.Buffer{}

	var success uint8
	if s.Success {
		success = 1
	}
	if err := binary.Write(buf, binary.LittleEndian, success); err != nil {
		return nil, err
	}

	if err := writeString(buf, s.Message); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.LittleEndian, s.Errno); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, s.Pid); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeStartedProcess decodes a StartedProcess reply.
func DecodeStartedProcess(data []byte) (StartedProcess, error) {
	r := bytes.NewReader(data)
	var s StartedProcess

	var success uint8
	if err := binary.Read(r, binary.LittleEndian, &success); err != nil {
		return StartedProcess{}, ErrorShortBuffer.Error(err)
	}
	s.Success = success != 0

	msg, err := readString(r)
	if err != nil {
		return StartedProcess{}, err
	}
	s.Message = msg

	if err := binary.Read(r, binary.LittleEndian, &s.Errno); err != nil {
		return StartedProcess{}, ErrorShortBuffer.Error(err)
	}
	if err := binary.Read(r, binary.LittleEndian, &s.Pid); err != nil {
		return StartedProcess{}, ErrorShortBuffer.Error(err)
	}

	return s, nil
}

// EncodeSignal encodes a Signal datagram.
func EncodeSignal(s Signal) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, int32(s)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSignal decodes a Signal datagram.
func DecodeSignal(data []byte) (Signal, error) {
	r := bytes.NewReader(data)
	var v int32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, ErrorShortBuffer.Error(err)
	}
	return Signal(v), nil
}

// EncodeProcessResult encodes the final ProcessResult datagram.
func EncodeProcessResult(res ProcessResult) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, res.Tag); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, res.Payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeProcessResult decodes a ProcessResult datagram.
func DecodeProcessResult(data []byte) (ProcessResult, error) {
	r := bytes.NewReader(data)
	var res ProcessResult

	if err := binary.Read(r, binary.LittleEndian, &res.Tag); err != nil {
		return ProcessResult{}, ErrorShortBuffer.Error(err)
	}
	if res.Tag > ResultSignal {
		return ProcessResult{}, ErrorInvalidTag.Error(nil)
	}
	if err := binary.Read(r, binary.LittleEndian, &res.Payload); err != nil {
		return ProcessResult{}, ErrorShortBuffer.Error(err)
	}

	return res, nil
}
