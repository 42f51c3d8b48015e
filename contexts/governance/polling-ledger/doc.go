// Package pollingledger implements the governance polling ledger.
//
// The module owns poll creation (direct and from templates), every ballot
// flavour from one-account-one-vote to liquid delegation, the poll status
// machine, delegation, reputation, analytics and the reward pool. Writes go
// through a single LedgerStore mutation so that state and its outbox events
// commit together; workers relay the outbox, sweep expired polls, write
// state snapshots and settle reward claims.
package pollingledger
