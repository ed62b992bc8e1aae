// Package methods provides the streaming primitives indicators are composed
// from: rate of change, crossover and reversal detection, and the moving
// average kinds that satisfy core.MovingAverageConstructor.
//
// Every method is an incremental state machine over a scalar stream. Update
// cost is O(1) except ReversalSignal, which scans its left+right+1 window.
// No method reads a value later than the one passed to its current call.
package methods
