// Package bridge keeps the vanish state of a network of backend servers
// consistent through a central proxy.
//
// A Backend announces changes of players it hosts and applies changes the
// proxy forwards from other backends. The Proxy holds the network wide
// snapshot, forwards every accepted change to all backends except its
// origin and answers snapshot requests of (re)connecting backends.
//
// Changes of one player are ordered by a sequence number drawn from a
// hybrid logical Clock. A change is applied only if its sequence number is
// higher than the last one applied for that player.
package bridge
