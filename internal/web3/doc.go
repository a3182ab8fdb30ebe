// Package web3 groups the blockchain data access used by the Ankr actions:
// the chains registry of supported networks and the JSON-RPC client for the
// Ankr Advanced (multichain) API.
package web3
