// Package core reconciles per-origin back-office extracts into canonical
// entities.
//
// It has no storage or CLI dependencies: extracts come in through [Source]
// and persistence goes out through [Store]. Entity behavior lives in
// [EntityDefinition] records registered at init time by package tables.
//
// # Pipeline
//
// Every entity type goes through the same stages, in its own transaction:
//
//  1. Ingest: both origins' files are loaded and concatenated.
//  2. Normalize: headers are bound to fields ([Bind]) and cells coerced
//     ([Normalize]). Uncoercible cells become null plus a [Diagnostic].
//  3. Select: [SelectBatch] applies the origin policy (customer origin
//     priority, product stock sum) and [Dedup] keeps the first row per key.
//  4. Resolve: reference fields get ids of already imported entities
//     ([ReferenceResolver]); [DeriveBatch] computes order totals.
//  5. Merge: one [LoadSnapshot] per entity, then [Resolve] per row,
//     partitioned into a [Plan].
//  6. Upsert: [Execute] bulk inserts new rows (conflicts ignored) and bulk
//     updates changed ones.
//
// [Importer] sequences the entity types in [ImportOrder]; [Consolidate]
// runs stages 1 to 4 without a store and returns plain tables.
//
// # Error Handling
//
// Row problems never abort a run: they are recorded in the [EntitySummary]
// as [InvalidRowError] values. A [MissingColumnError] or
// [ConstraintViolation] fails the entity type and stops the run. Operator
// messages come from [MapError].
package core
