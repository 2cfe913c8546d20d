// Package rulefile loads processing rules from YAML and reloads them when
// the file changes.
//
//	rules:
//	  - type: like
//	    channels: [in_app, push]
//	    priority: low
//	    enable_batching: true
//	    batch_window: 10m
//	    max_batch_size: 20
//	    enable_deduplication: true
//	    deduplication_window: 30m
//	    max_per_hour: 20
//	    max_per_day: 100
//
// A Watcher hands each valid rule set to an ApplyFunc, typically
// (*processor.Processor).ReplaceRules. Invalid edits are logged and the
// previous rules stay active.
package rulefile
