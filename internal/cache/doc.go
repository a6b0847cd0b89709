// Package cache stores synthesized payloads so a rerun over the same lines
// does not call the synthesis service again. It has an in-memory LRU tier
// (L1) and a zstd-compressed disk tier (L2) that survives between runs.
package cache
