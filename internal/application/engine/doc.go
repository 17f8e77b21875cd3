// Package engine implements the core of the cognitive graph runtime: the
// structural validator and the executor that drives node invocation over a
// loaded graph document.
//
// The executor respects data dependencies, allows bounded loop-back edges
// originated by control-flow routers, and emits lifecycle events for every
// node invocation. Termination is guaranteed by construction: a cycle can
// only be re-entered through a router whose looped node carries an
// iteration counter checked against the router's maxIterations property.
package engine
