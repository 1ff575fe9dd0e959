package replication

import "fmt"

// InfoReplication formats the replication section of INFO, per spec.md
// §6's diagnostics surface: role, connected replica count, and the
// offset fields WAIT and a freshly-handshaked replica both depend on.
func InfoReplication(role Role, reg *Registry, upstream *Upstream) string {
	if role == RoleReplica && upstream != nil {
		m := upstream.Master()
		return fmt.Sprintf(
			"# Replication\r\nrole:slave\r\nmaster_host:%s\r\nmaster_link_status:%s\r\nmaster_replid:%s\r\nmaster_repl_offset:%d\r\nslave_repl_offset:%d\r\n",
			"", linkStatus(upstream.State()), m.ReplID, m.Offset, upstream.ProcessedOffset(),
		)
	}

	out := fmt.Sprintf("# Replication\r\nrole:master\r\nconnected_slaves:%d\r\nmaster_replid:%s\r\nmaster_repl_offset:%d\r\n",
		len(reg.Replicas()), reg.ReplID(), reg.Offset())
	for i, h := range reg.Replicas() {
		out += fmt.Sprintf("slave%d:offset=%d\r\n", i, h.AckOffset())
	}
	return out
}

func linkStatus(s State) string {
	if s == StateStableSync {
		return "up"
	}
	return "down"
}
