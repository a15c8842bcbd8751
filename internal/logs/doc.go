// Package logs reads the JSON run log written next to the ledger. It tails the
// last N matching records, follows the file for new ones, and filters by run
// id, entry id or minimum level so a single run can be replayed from a log
// shared by every invocation.
package logs
