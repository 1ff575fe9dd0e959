package dispatcher

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"redikv/internal/replication"
	"redikv/internal/resp"
)

var (
	errReplicationNotMaster = errors.New("ERR PSYNC is only valid against a master instance")
	errNotInteger           = errors.New("ERR value is not an integer or out of range")
)

func (d *Dispatcher) cmdReplConf(s *Session, args [][]byte) error {
	if len(args) >= 2 && strings.EqualFold(string(args[1]), "ACK") && len(args) >= 3 {
		if s.Replica != nil {
			off, err := strconv.ParseInt(string(args[2]), 10, 64)
			if err == nil {
				s.Replica.RecordAck(off)
			}
		}
		return nil // REPLCONF ACK expects no reply
	}
	return s.lockedEncoder(func(e *resp.Encoder) error {
		return s.ReplConf.HandleReplConf(e, args[1:])
	})
}

// cmdPsync implements PSYNC <replid> <offset>, per spec.md §4.8.1. A
// first-time replica sends "PSYNC ? -1" (no prior replid/offset), which
// never matches and always falls back to FULLRESYNC; a replica
// reconnecting within the grace window sends the replid/offset it last
// saw, which BeginPSYNC checks against the backlog for a partial resync.
func (d *Dispatcher) cmdPsync(s *Session, args [][]byte) error {
	if d.Role != replication.RoleMaster || d.Registry == nil {
		return errReplicationNotMaster
	}
	if len(args) != 3 {
		return wrongNumArgs("psync")
	}
	claimedReplID := string(args[1])
	if claimedReplID == "?" {
		claimedReplID = ""
	}
	claimedOffset, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		claimedOffset = -1
	}
	var snapshot []byte
	if d.SnapshotFn != nil {
		snapshot = d.SnapshotFn()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	h, err := replication.BeginPSYNC(s.conn, s.enc, d.Registry, snapshot, &s.ReplConf, claimedReplID, claimedOffset)
	if err != nil {
		return err
	}
	s.Replica = h
	s.IsReplicaConn = true
	return nil
}

func (d *Dispatcher) cmdWait(s *Session, args [][]byte) error {
	if len(args) != 3 {
		return wrongNumArgs("wait")
	}
	numReplicas, err := strconv.Atoi(string(args[1]))
	if err != nil {
		return errNotInteger
	}
	timeoutMs, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return errNotInteger
	}
	if d.Registry == nil {
		return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(0) })
	}
	n := d.Registry.Wait(numReplicas, time.Duration(timeoutMs)*time.Millisecond)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}
