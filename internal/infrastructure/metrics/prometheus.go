package metrics

import (
	"expvar"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

type meta struct {
	typ, help string
	isMap     bool
	label     string
}

var metas = map[string]meta{
	"nia_checkpoint_gets_total":           {typ: "counter", help: "Checkpoint lookups", isMap: true, label: "backend"},
	"nia_checkpoint_misses_total":         {typ: "counter", help: "Checkpoint lookups that found no record", isMap: true, label: "backend"},
	"nia_checkpoint_corrupt_total":        {typ: "counter", help: "Stored checkpoints that failed to decode", isMap: true, label: "backend"},
	"nia_checkpoint_puts_total":           {typ: "counter", help: "Checkpoints written", isMap: true, label: "backend"},
	"nia_checkpoint_put_failures_total":   {typ: "counter", help: "Checkpoint writes that failed", isMap: true, label: "kind"},
	"nia_memory_store_bytes":              {typ: "gauge", help: "Serialized size of the in-memory store", isMap: true, label: "backend"},
	"nia_memory_store_threads":            {typ: "gauge", help: "Threads held by the in-memory store", isMap: true, label: "backend"},
	"nia_checkpoint_pending_writes_total": {typ: "counter", help: "Intermediate writes accepted", isMap: false},
	"nia_turns_total":                     {typ: "counter", help: "Conversation turns started", isMap: false},
	"nia_turn_failures_total":             {typ: "counter", help: "Conversation turns that failed on the store", isMap: false},
}

// Handler serves the expvar metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		WritePrometheus(w)
	})
}

// WritePrometheus renders known metrics with HELP and TYPE lines. Other
// integer expvars are emitted as untyped gauges.
// nolint:gocognit // Straightforward formatter
func WritePrometheus(w io.Writer) {
	varNames := make([]string, 0, 64)
	expvar.Do(func(kv expvar.KeyValue) {
		varNames = append(varNames, kv.Key)
	})
	sort.Strings(varNames)

	for _, name := range varNames {
		v := expvar.Get(name)
		m, known := metas[name]
		if !known {
			if iv, ok := v.(*expvar.Int); ok {
				_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", name)
				_, _ = fmt.Fprintf(w, "%s %s\n", name, iv.String())
			}
			continue
		}

		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, sanitizeHelp(m.help))
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, m.typ)
		if !m.isMap {
			_, _ = fmt.Fprintf(w, "%s %s\n", name, v.String())
			continue
		}
		mp, ok := v.(*expvar.Map)
		if !ok {
			continue
		}
		sub := make([]expvar.KeyValue, 0, 8)
		mp.Do(func(kv expvar.KeyValue) { sub = append(sub, kv) })
		sort.Slice(sub, func(i, j int) bool { return sub[i].Key < sub[j].Key })
		for _, kv := range sub {
			_, _ = fmt.Fprintf(w, "%s{%s=\"%s\"} %s\n", name, m.label, escapeLabel(kv.Key), kv.Value.String())
		}
	}
}

func sanitizeHelp(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

// escapeLabel escapes backslash, double-quote and newline.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
