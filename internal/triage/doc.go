// Package triage implements deterministic keyword-bucket scoring for threat
// reports: text normalization, per-bucket stem matching, and the priority
// classification rules with traceable explanations. Everything here is pure
// and in-memory; persistence and messaging live elsewhere.
package triage
