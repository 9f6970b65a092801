/*
Pipeline drives one order intent through the fixed execution stages.

# Module
  - intake: derive the client order id and register the intent
  - validation: contract checks against the symbol registry
  - risk: kill switch, position caps and the injected risk hook
  - routing: governance resolution and venue adapter selection
  - dispatch: idempotent adapter call with bounded retry
  - events: state machine transitions from venue responses
  - posting: fills land in the ledger, every transition in the audit log
  - handoff: internal view export for reconciliation

# Source
  - order intents from callers (CLI, replay tooling, tests)
  - execution events from venue adapters

# Produce
  - typed submit results with stable reason codes
  - audit entries, ledger postings and the reconciliation view

# Sharded
  - none; one orchestrator owns one run
*/
package pipeline
