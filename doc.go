// Package modpipe defines the core types, collaborator interfaces, and
// helpers used across the content-processing pipeline. It provides the
// content item and analysis models, the durable-log/document-store/
// time-series/membership/vector-index/pub-sub contracts, shared error
// codes, retry, and logging configuration. Concrete backends live in
// subpackages such as redis and cassandra, while the pipeline itself is
// assembled from analyze, embedding, dedupe, metrics, search, events and
// consumer.
package modpipe
