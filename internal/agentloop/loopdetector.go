package agentloop

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// loopThreshold and loopWindow implement spec.md §4.8 step 5: if the same
// (tool_name, canonical_args) fingerprint occurs loopThreshold times within
// the last loopWindow tool calls, the LLM is warned it is looping.
const (
	loopThreshold = 3
	loopWindow    = 6
)

type fingerprint struct {
	tool string
	hash string
}

// loopDetector tracks a bounded FIFO of recent tool-call fingerprints.
type loopDetector struct {
	window []fingerprint
}

func newLoopDetector() *loopDetector {
	return &loopDetector{}
}

// canonicalHash renders args as a stable, key-sorted JSON document and
// hashes it, so that argument order never affects fingerprint equality.
func canonicalHash(args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, args[k])
	}
	b, _ := json.Marshal(ordered)

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// record appends a new fingerprint to the window, trimming it to the last
// loopWindow entries, and reports how many times this exact fingerprint now
// appears within that window.
func (d *loopDetector) record(tool string, args map[string]interface{}) (hash string, count int) {
	hash = canonicalHash(args)
	d.window = append(d.window, fingerprint{tool: tool, hash: hash})
	if len(d.window) > loopWindow {
		d.window = d.window[len(d.window)-loopWindow:]
	}

	for _, f := range d.window {
		if f.tool == tool && f.hash == hash {
			count++
		}
	}
	return hash, count
}

// isLooping reports whether count has reached loopThreshold.
func isLooping(count int) bool {
	return count >= loopThreshold
}
