package replication

import (
	"fmt"
	"net"
	"strconv"

	"redikv/internal/resp"
)

// ReplConfState accumulates REPLCONF exchanges from a client that is
// working through the handshake before issuing PSYNC, per spec.md
// §4.8.1. One instance lives per connection.
type ReplConfState struct {
	ListeningPort int
	Capabilities  []string
}

// HandleReplConf applies one REPLCONF subcommand and writes the +OK
// reply; GETACK and ACK expect no reply and write nothing.
func (s *ReplConfState) HandleReplConf(enc *resp.Encoder, args [][]byte) error {
	if len(args) < 1 {
		return enc.Error("ERR wrong number of arguments for 'replconf' command")
	}
	switch sub := upperOf(args[0]); sub {
	case "LISTENING-PORT":
		if len(args) < 2 {
			return enc.Error("ERR wrong number of arguments for 'replconf' command")
		}
		port, err := strconv.Atoi(string(args[1]))
		if err != nil {
			return enc.Error("ERR value is not an integer or out of range")
		}
		s.ListeningPort = port
		return enc.SimpleString("OK")
	case "CAPA":
		for _, a := range args[1:] {
			s.Capabilities = append(s.Capabilities, string(a))
		}
		return enc.SimpleString("OK")
	case "GETACK":
		// Only ever sent master->replica; a client sending this to us is
		// a protocol oddity, but real Redis just ignores it.
		return nil
	case "ACK":
		// Handled by the dispatcher's cmdReplConf, which owns the session's
		// ReplicaHandle and updates ackOffset; nothing to reply (ACK is one-way).
		return nil
	default:
		return enc.SimpleString("OK")
	}
}

func upperOf(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// BeginPSYNC answers a PSYNC <replid> <offset> request, per spec.md
// §3/§4.8's grace-window partial resync: when claimedReplID matches the
// master's current replication ID and claimedOffset still falls inside
// the in-memory backlog, it replies +CONTINUE <replid> and streams only
// the backlog bytes from that offset onward. Otherwise (first connection,
// "? -1", a replid from a previous master generation, or an offset that
// has already aged out of the backlog) it falls back to +FULLRESYNC
// <replid> <offset> followed by the full RDB payload, streamed as a
// bulk-string-shaped (but unterminated) blob. Either way the connection
// is then registered as a live replica for the ongoing command stream.
func BeginPSYNC(conn net.Conn, enc *resp.Encoder, reg *Registry, rdbPayload []byte, s *ReplConfState, claimedReplID string, claimedOffset int64) (*ReplicaHandle, error) {
	if claimedReplID != "" && claimedReplID == reg.ReplID() {
		if tail, ok := reg.BacklogSince(claimedOffset); ok {
			if err := enc.SimpleString(fmt.Sprintf("CONTINUE %s", reg.ReplID())); err != nil {
				return nil, err
			}
			if err := enc.RawBytes(tail); err != nil {
				return nil, err
			}
			if err := enc.Flush(); err != nil {
				return nil, err
			}
			return reg.Register(conn, s.Capabilities), nil
		}
	}
	if err := enc.SimpleString(fmt.Sprintf("FULLRESYNC %s %d", reg.ReplID(), reg.Offset())); err != nil {
		return nil, err
	}
	if err := enc.RawBulkHeader(len(rdbPayload)); err != nil {
		return nil, err
	}
	if err := enc.RawBytes(rdbPayload); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return reg.Register(conn, s.Capabilities), nil
}
