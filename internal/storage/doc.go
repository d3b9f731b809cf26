// Package storage define el contrato CRUD genérico y el modelo de queries
// compartido por todos los backends (sqlite, postgres, fs-json, fs-jsonl, mem).
//
// El modelo de queries es puro (datos + funciones, sin I/O): los backends lo
// traducen a SQL parametrizado o lo evalúan en memoria con matchWhere, pero
// la semántica es idéntica en todos.
package storage
