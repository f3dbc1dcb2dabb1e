// Package health builds the probes behind the storefront's liveness and
// readiness endpoints.
//
// A [Probe] is anything with a Check method; [CheckFunc] adapts a plain
// function. [All] requires every probe to pass, [Any] requires one, and
// [Fixed] pins a static answer for wiring and tests.
//
// [ShutdownGate] handles deploys: closing the gate fails readiness at once
// so the balancer pulls the instance before in-flight checkouts are cut off.
package health
