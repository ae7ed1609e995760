// Package cachemaster is a backend-agnostic cache. A Cache routes every
// call to one store chosen at construction: an in-process local store with
// lazy expiry, or a remote key-value store reached through a driver under
// driver/. Keys are namespaced and validated by cachecore.KeyCodec.
//
// Memoize and MemoizeAsync cache function results per argument. Registry
// holds one shared Cache for an application and manages its connection.
package cachemaster
