/*
Package health provides liveness checks used to decide whether a remote
Nexus endpoint is reachable before depending on it.

A replica dialing replication.master_addr, or an operator tool waiting
for a freshly started daemon to come up, both need the same primitive:
"is something listening at this address yet." TCPChecker answers that
without assuming anything about what runs on the other end. Checker is
kept as an interface rather than a single concrete type so a future
check (e.g. a Cypher `RETURN 1` round trip) can be swapped in without
touching callers.

# Flow

A caller constructs a Status, then on an interval calls a Checker and
feeds the Result to Status.Update:

	status := health.NewStatus()
	checker := health.NewTCPChecker(masterAddr)
	for {
		status.Update(checker.Check(ctx), cfg)
		if status.Healthy {
			break
		}
		time.Sleep(cfg.Interval)
	}

Retries consecutive failures before flipping Healthy to false, so a
single dropped packet during a reconnect storm doesn't flap status.
*/
package health
