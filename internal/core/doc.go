// Package core holds the employee domain shared by every surface of the
// application: the authoritative in-memory store, calendar dates, cell and
// stream cleanup helpers, and the user-facing error catalogue.
//
// It has no transport or view dependencies and can be used by the HTTP
// server, the CLI, or tests without modification.
//
// # Store
//
// [Store] owns the ordered employee collection and id allocation. Callers
// only ever receive copies:
//
//	store := core.NewStore()
//	if err := store.Seed(core.DefaultSeed()); err != nil {
//	    return err
//	}
//	emp := store.Add(core.Employee{Name: "김영희", Department: "영업", JoinDate: core.Today()})
//	_ = store.UpdateFields(emp.ID, core.Patch{Department: core.Ptr("인사")})
//
// New ids are always max(existing)+1, or 1 for an empty store. Ids are never
// handed out twice while the record holding them is present.
//
// # Dates
//
// Join dates are calendar dates ([Date]) with no time or zone. [ParseDate]
// accepts ISO, US, European and Korean renderings; [Date.String] always
// renders yyyy-MM-dd.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has a code for support reference:
//
//   - VAL001-VAL007: validation (dates, names, headers)
//   - FILE001-FILE005: file errors (size, format, encoding)
//   - IMP001-IMP003: import scheduling (busy, cancelled, timed out)
//   - NF001: unknown employee
//   - VIEW001-VIEW002: view lifecycle
package core
