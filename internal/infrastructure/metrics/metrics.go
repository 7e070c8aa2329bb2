package metrics

import (
	"expvar"
)

// Checkpoint store metrics using expvar maps keyed by backend or error kind.
var (
	checkpointGets        = expvar.NewMap("nia_checkpoint_gets_total")
	checkpointMisses      = expvar.NewMap("nia_checkpoint_misses_total")
	checkpointCorrupt     = expvar.NewMap("nia_checkpoint_corrupt_total")
	checkpointPuts        = expvar.NewMap("nia_checkpoint_puts_total")
	checkpointPutFailures = expvar.NewMap("nia_checkpoint_put_failures_total")
	memoryStoreBytes      = expvar.NewMap("nia_memory_store_bytes")
	memoryStoreThreads    = expvar.NewMap("nia_memory_store_threads")
)

// Conversation loop metrics.
var (
	pendingWritesTotal = new(expvar.Int)
	turnsTotal         = new(expvar.Int)
	turnFailuresTotal  = new(expvar.Int)
)

func init() {
	expvar.Publish("nia_checkpoint_pending_writes_total", pendingWritesTotal)
	expvar.Publish("nia_turns_total", turnsTotal)
	expvar.Publish("nia_turn_failures_total", turnFailuresTotal)
}

// Checkpoint helpers
func CheckpointGet(backend string) { checkpointGets.Add(backend, 1) }
func CheckpointMiss(backend string) { checkpointMisses.Add(backend, 1) }
func CheckpointCorrupt(backend string) { checkpointCorrupt.Add(backend, 1) }
func CheckpointPut(backend string) { checkpointPuts.Add(backend, 1) }
func CheckpointPutFailure(kind string) { checkpointPutFailures.Add(kind, 1) }
func AddPendingWrites(n int) { pendingWritesTotal.Add(int64(n)) }
func MemoryStoreBytes(backend string, size int64) { setMapInt(memoryStoreBytes, backend, size) }
func MemoryStoreThreads(backend string, n int) { setMapInt(memoryStoreThreads, backend, int64(n)) }

// Loop helpers
func IncTurns() { turnsTotal.Add(1) }
func IncTurnFailures() { turnFailuresTotal.Add(1) }

// setMapInt replaces value for a key in an expvar.Map with an *expvar.Int set to v.
func setMapInt(m *expvar.Map, key string, v int64) {
	x := new(expvar.Int)
	x.Set(v)
	m.Set(key, x)
}

// Count returns the current value of a labelled counter, or 0 when the metric
// or label has not been recorded yet.
func Count(name, label string) int64 {
	switch v := expvar.Get(name).(type) {
	case *expvar.Int:
		return v.Value()
	case *expvar.Map:
		if x, ok := v.Get(label).(*expvar.Int); ok {
			return x.Value()
		}
	}
	return 0
}
