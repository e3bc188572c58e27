// Package allowlist matches source addresses against literal addresses and
// CIDR blocks.
//
// IPv4 CIDR blocks are matched with prefix arithmetic. IPv6 entries, CIDR
// or not, are matched by exact string equality only; an IPv6 block such as
// "fd00::/8" therefore matches nothing but the identical string. This keeps
// behaviour identical to the router firmware this package replaces.
package allowlist
