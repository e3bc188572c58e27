// Package keylock serialises read-modify-write sequences on shared state by
// key.
//
// Local locks a key within one process. Redis locks a key across every
// process sharing the Redis server, so two request handlers cannot both
// read "3 failures" and both write "4".
package keylock
