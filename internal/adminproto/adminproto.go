// Package adminproto is the minimal newline-delimited command surface
// SPEC_FULL.md §4.6 adds on top of spec.md's explicitly out-of-scope
// "text/binary protocol parser": just enough of SET/GET/DELETE/TOUCH/
// INCR/DECR/CAS to drive the core end to end from cmd/cacheprobe and the
// integration tests in spec.md §8. It is not, and does not claim to be,
// the memcached wire protocol.
//
// Framing is grounded on the teacher's eventloop/ingress.go chunked-read
// pattern: accumulate bytes off the connection until a full line (or, for
// SET/CAS, a full line plus its declared data block) is available, then
// dispatch.
package adminproto

import (
	"bufio"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
	"strings"

	"github.com/joeycumines/cachecore/internal/dispatch"
	"github.com/joeycumines/cachecore/internal/durability"
	"github.com/joeycumines/cachecore/internal/item"
	"github.com/joeycumines/cachecore/internal/logctx"
	"github.com/joeycumines/cachecore/internal/store"
)

// Server wires the admin command surface to the core: the store it reads
// and writes, the log writer pool it notifies on every mutation (spec.md
// §4.4's NotifyLog contract), and the snapshotter it can nudge via
// FORCE_SNAPSHOT.
type Server struct {
	Store       store.Store
	LogPool     *durability.LogPool
	Snapshotter interface {
		ForceCheck(ctx context.Context) bool
	}
	Logger logctx.Logger
}

// Hash is the external hash-function collaborator spec.md §6 names
// ("the hash function ... out of scope"): FNV-1a over the key, the
// standard library's own non-cryptographic hash, adequate for bucket
// selection and nothing else.
func Hash(key []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(key)
	return h.Sum32()
}

// Handle is a dispatch.ConnHandler: the per-connection command loop bound
// to the worker that dispatched this connection (spec.md §2). One
// goroutine per connection, for the lifetime of the connection.
func (s *Server) Handle(ctx context.Context, w *dispatch.Worker, rec *dispatch.HandoffRecord) {
	if rec == nil || rec.Conn == nil {
		return
	}
	conn := rec.Conn
	defer conn.Close()

	r := bufio.NewReaderSize(conn, rec.ReadBufSize)
	if rec.ReadBufSize <= 0 {
		r = bufio.NewReader(conn)
	}

	for {
		line, err := readLine(r)
		if err != nil {
			return
		}
		if len(line) == 0 {
			continue
		}
		resp := s.dispatch(ctx, w, r, line)
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

// readLine reads a single CRLF- or LF-terminated line, stripping the
// terminator.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if len(line) == 0 {
			return "", err
		}
	}
	line = strings.TrimRight(line, "\r\n")
	return line, nil
}

func errorLine(msg string) []byte {
	return []byte("ERROR " + msg + "\r\n")
}

// dispatch parses one command line and its data block (if any), applying
// it under the worker's current lock mode, and returns the response.
func (s *Server) dispatch(ctx context.Context, w *dispatch.Worker, r *bufio.Reader, line string) []byte {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return errorLine("empty command")
	}

	switch strings.ToUpper(fields[0]) {
	case "SET":
		return s.handleSet(ctx, w, r, fields)
	case "CAS":
		return s.handleCAS(ctx, w, r, fields)
	case "GET":
		return s.handleGet(w, fields)
	case "DELETE":
		return s.handleDelete(ctx, w, fields)
	case "TOUCH":
		return s.handleTouch(w, fields)
	case "INCR":
		return s.handleAddDelta(ctx, w, fields, true)
	case "DECR":
		return s.handleAddDelta(ctx, w, fields, false)
	case "FORCE_SNAPSHOT":
		if s.Snapshotter != nil {
			s.Snapshotter.ForceCheck(ctx)
		}
		return []byte("OK\r\n")
	default:
		return errorLine("unknown command " + fields[0])
	}
}

// readDataBlock reads exactly n bytes of payload followed by the CRLF
// terminator, per the `SET key flags exptime bytes\r\n<data>` framing.
func readDataBlock(r *bufio.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	trailer := make([]byte, 2)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Server) handleSet(ctx context.Context, w *dispatch.Worker, r *bufio.Reader, fields []string) []byte {
	// SET key flags exptime bytes
	if len(fields) != 5 {
		return errorLine("SET key flags exptime bytes")
	}
	key := []byte(fields[1])
	flags, err1 := strconv.ParseUint(fields[2], 10, 8)
	exptime, err2 := strconv.ParseUint(fields[3], 10, 32)
	n, err3 := strconv.Atoi(fields[4])
	if err1 != nil || err2 != nil || err3 != nil || n < 0 {
		return errorLine("bad numeric argument")
	}
	value, err := readDataBlock(r, n)
	if err != nil {
		return errorLine("short data block")
	}

	im, err := item.NewLinked(key, value, uint8(flags), uint32(exptime), 0)
	if err != nil {
		return errorLine(err.Error())
	}

	h := Hash(key)
	w.LockTable().Lock(w.Mode(), h)
	err = s.Store.Link(im)
	w.LockTable().Unlock(w.Mode(), h)
	if err != nil {
		return errorLine(err.Error())
	}
	if err := s.LogPool.NotifyLog(ctx, im); err != nil && s.Logger != nil {
		s.Logger.Err().Err(err).Log("adminproto: notify log failed on SET")
	}
	w.Stats().IncrSets()
	return []byte("STORED\r\n")
}

func (s *Server) handleCAS(ctx context.Context, w *dispatch.Worker, r *bufio.Reader, fields []string) []byte {
	// CAS key flags exptime bytes cas
	if len(fields) != 6 {
		return errorLine("CAS key flags exptime bytes cas")
	}
	key := []byte(fields[1])
	flags, err1 := strconv.ParseUint(fields[2], 10, 8)
	exptime, err2 := strconv.ParseUint(fields[3], 10, 32)
	n, err3 := strconv.Atoi(fields[4])
	casTok, err4 := strconv.ParseUint(fields[5], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || n < 0 {
		return errorLine("bad numeric argument")
	}
	value, err := readDataBlock(r, n)
	if err != nil {
		return errorLine("short data block")
	}

	im, err := item.NewLinked(key, value, uint8(flags), uint32(exptime), casTok)
	if err != nil {
		return errorLine(err.Error())
	}

	h := Hash(key)
	w.LockTable().Lock(w.Mode(), h)
	err = s.Store.CAS(im)
	w.LockTable().Unlock(w.Mode(), h)
	switch {
	case err == store.ErrCASMismatch:
		w.Stats().IncrCASMisses()
		return []byte("EXISTS\r\n")
	case err == store.ErrNotFound:
		return []byte("NOT_FOUND\r\n")
	case err != nil:
		return errorLine(err.Error())
	}
	w.Stats().IncrCASHits()
	if err := s.LogPool.NotifyLog(ctx, im); err != nil && s.Logger != nil {
		s.Logger.Err().Err(err).Log("adminproto: notify log failed on CAS")
	}
	return []byte("STORED\r\n")
}

func (s *Server) handleGet(w *dispatch.Worker, fields []string) []byte {
	if len(fields) != 2 {
		return errorLine("GET key")
	}
	key := []byte(fields[1])
	h := Hash(key)
	w.LockTable().Lock(w.Mode(), h)
	im, err := s.Store.Get(key, store.Now())
	w.LockTable().Unlock(w.Mode(), h)
	if err != nil {
		w.Stats().IncrGetMisses()
		return []byte("END\r\n")
	}
	w.Stats().IncrGetHits()
	var out strings.Builder
	fmt.Fprintf(&out, "VALUE %s %d %d\r\n", fields[1], im.Flags&^item.FlagLinked, len(im.Value))
	out.Write(im.Value)
	out.WriteString("\r\nEND\r\n")
	return []byte(out.String())
}

func (s *Server) handleDelete(ctx context.Context, w *dispatch.Worker, fields []string) []byte {
	if len(fields) != 2 {
		return errorLine("DELETE key")
	}
	key := []byte(fields[1])
	h := Hash(key)
	w.LockTable().Lock(w.Mode(), h)
	err := s.Store.Unlink(key)
	w.LockTable().Unlock(w.Mode(), h)
	if err != nil {
		return []byte("NOT_FOUND\r\n")
	}
	w.Stats().IncrDeletes()
	tomb, terr := item.Tombstone(key, 0)
	if terr == nil {
		if err := s.LogPool.NotifyLog(ctx, tomb); err != nil && s.Logger != nil {
			s.Logger.Err().Err(err).Log("adminproto: notify log failed on DELETE")
		}
	}
	return []byte("DELETED\r\n")
}

func (s *Server) handleTouch(w *dispatch.Worker, fields []string) []byte {
	if len(fields) != 3 {
		return errorLine("TOUCH key exptime")
	}
	key := []byte(fields[1])
	exptime, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return errorLine("bad exptime")
	}
	h := Hash(key)
	w.LockTable().Lock(w.Mode(), h)
	_, terr := s.Store.Touch(key, uint32(exptime))
	w.LockTable().Unlock(w.Mode(), h)
	if terr != nil {
		return []byte("NOT_FOUND\r\n")
	}
	w.Stats().IncrTouches()
	return []byte("TOUCHED\r\n")
}

func (s *Server) handleAddDelta(ctx context.Context, w *dispatch.Worker, fields []string, incr bool) []byte {
	name := "INCR"
	if !incr {
		name = "DECR"
	}
	if len(fields) != 3 {
		return errorLine(name + " key delta")
	}
	key := []byte(fields[1])
	delta, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || delta < 0 {
		return errorLine("bad delta")
	}
	h := Hash(key)
	w.LockTable().Lock(w.Mode(), h)
	newValue, aerr := s.Store.AddDelta(key, delta, incr, store.Now())
	w.LockTable().Unlock(w.Mode(), h)
	switch aerr {
	case store.ErrNotFound:
		return []byte("NOT_FOUND\r\n")
	case store.ErrNotNumeric:
		return errorLine("value is not a decimal integer")
	case nil:
	default:
		return errorLine(aerr.Error())
	}
	w.Stats().IncrIncrDecr()
	im, gerr := s.Store.Get(key, store.Now())
	if gerr == nil {
		if err := s.LogPool.NotifyLog(ctx, im); err != nil && s.Logger != nil {
			s.Logger.Err().Err(err).Log("adminproto: notify log failed on " + name)
		}
	}
	return []byte(strconv.FormatUint(newValue, 10) + "\r\n")
}
