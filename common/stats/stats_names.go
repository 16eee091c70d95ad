package stats

/*
This file defines all the metrics being collected. As new metrics are added please follow this pattern.
*/

const (
	/************************* Scheduler metrics **************************/
	/*
		number of operations handed to Submit, including rejected ones
	*/
	OpSubmittedCounter = "opSubmittedCounter"

	/*
		number of operations dispatched to a worker goroutine
	*/
	OpAdmittedCounter = "opAdmittedCounter"

	/*
		number of operations that had to wait behind a conflicting rule
	*/
	OpQueuedCounter = "opQueuedCounter"

	/*
		terminal state counters
	*/
	OpSucceededCounter = "opSucceededCounter"
	OpFailedCounter    = "opFailedCounter"
	OpCancelledCounter = "opCancelledCounter"

	/*
		number of Submit calls rejected because the scheduler was closed
	*/
	OpRejectedCounter = "opRejectedCounter"

	/*
		current size of the running set
	*/
	OpRunningGauge = "opRunningGauge"

	/*
		current size of the admission queue
	*/
	OpQueuedGauge = "opQueuedGauge"

	/*
		time from Submit to dispatch
	*/
	OpQueueWaitLatency_ms = "opQueueWaitLatency_ms"

	/*
		time spent inside the operation body
	*/
	OpRunLatency_ms = "opRunLatency_ms"

	/************************* Tunnel metrics **************************/
	/*
		number of tunnels successfully opened
	*/
	TunnelOpenedCounter = "tunnelOpenedCounter"

	/*
		number of Open calls that failed (session or listener)
	*/
	TunnelOpenFailureCounter = "tunnelOpenFailureCounter"

	/*
		number of tunnels torn down, counted once per tunnel
	*/
	TunnelDisposedCounter = "tunnelDisposedCounter"

	/*
		local connections accepted by tunnel accept loops
	*/
	TunnelAcceptedCounter = "tunnelAcceptedCounter"

	/*
		non-timeout accept errors that were logged and retried
	*/
	TunnelAcceptErrorCounter = "tunnelAcceptErrorCounter"

	/*
		remote dials or copies that failed for a single forwarded connection
	*/
	TunnelForwardErrorCounter = "tunnelForwardErrorCounter"

	/*
		forwarded connections currently open
	*/
	TunnelActiveConnGauge = "tunnelActiveConnGauge"

	/*
		keepalive probes that did not get a reply, each disposes its tunnel
	*/
	TunnelKeepAliveFailureCounter = "tunnelKeepAliveFailureCounter"

	/*
		time to establish the session and bind the local port
	*/
	TunnelOpenLatency_ms = "tunnelOpenLatency_ms"

	/************************* Platform metrics **************************/
	/*
		calls into the platform client, scoped by call name
	*/
	PlatformCallCounter      = "platformCallCounter"
	PlatformCallErrorCounter = "platformCallErrorCounter"
	PlatformCallLatency_ms   = "platformCallLatency_ms"
)
