/*
Ledger implements double-entry bookkeeping over simulated fills.

# Module
  - journal: append-only balanced posting sets, one per applied fill
  - accounts: derived balances for CASH / INVENTORY_COST / FEES_EXPENSE / REALIZED_PNL
  - positions: weighted-average-cost position tracking per symbol
  - snapshot: deterministic JSON export of cash, equity and P&L

# Source
  - fills from the execution pipeline
  - opening cash from configuration

# Produce
  - balances and positions for reconciliation
  - snapshot JSON for golden comparisons and archival

# Sharded
  - none; a single writer owns all mutation
*/
package ledger
