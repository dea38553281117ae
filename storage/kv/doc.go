// Package kv provides an interface for implementing
// kv drivers that persist the state of the placement engine.
//
// A kv plugin is a factory for root store instances. A root store
// contains zero or more stores and each store is a sorted map of
// keys to values. Stores operate independently from each other.
// Within a store transactions are serializable.
//
//  - Root Store
//    - Store A
//      - key1: abc
//      - key2: def
//    - Store B
//      - keyN: aaa
//      - keyM: xyz
//
// Each store acts like a namespace, allowing different components
// that require a kv storage interface to have their own store without
// needing to worry about stepping on the toes of other components.
package kv
