// Package copilot mirrors the program and preview selections of a video
// switcher's first mix-effect block onto the second mix-effect block and the
// auxiliary outputs, following a user-maintained mapping table.
//
// # Architecture Overview
//
// Copilot consists of five cooperating parts:
//  1. **Routing Normalizer**: collapses switcher notifications into eight canonical buses
//  2. **Diagnostic Buffer**: retains log, debug and error messages until an observer attaches
//  3. **Mapping and Palette Stores**: JSON files kept in lock-free snapshots and saved atomically
//  4. **Mirroring Engine**: turns ME1 program and preview changes into ME2 and AUX commands
//  5. **Audit Trail**: checksummed record of every command and mutation, SQLite or JSONL
//
// # Canonical Buses
//
// Whatever shape the switcher client reports, observers only ever see these
// eight routing paths:
//
//	ME1-Preview ME1-Program ME2-Preview ME2-Program AUX1 AUX2 AUX3 AUX4
//
// The full routing state is re-derived from the switcher snapshot on every
// notification, so a missed change record never leaves a stale bus behind.
//
// # Quick Start
//
//	engine, err := copilot.New(client, copilot.Config{
//		Address:     "192.168.1.200",
//		MappingFile: "mapping.json",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	engine.On(copilot.EventLog, func(ev copilot.Event) {
//		fmt.Println(ev.Args...)
//	})
//	engine.On(copilot.EventState, func(ev copilot.Event) {
//		fmt.Println(ev.State)
//	})
//
//	if err := engine.Start(); err != nil {
//		log.Fatal(err)
//	}
//
// # Mapping Table
//
// The mapping file maps an ME1 input id to the ME2 input and the AUX inputs
// that should follow it:
//
//	{
//	    "3": { "ME2": 6, "AUX1": 2 },
//	    "4": { "ME2": 7, "AUX2": 5 }
//	}
//
// Selecting input 3 on ME1 program then issues exactly two commands: ME2
// program to input 6 and AUX1 to input 2. An input without an entry issues
// nothing and logs a single line.
//
// # AUX Palettes
//
// A palette makes AUX buses follow each other when routed through
// SetAuxWithSync. Locked followers are skipped and following is not
// transitive:
//
//	{
//	    "AUX2": { "syncTarget": "AUX1", "isLocked": false },
//	    "AUX3": { "syncTarget": "AUX1", "isLocked": true }
//	}
//
// # Error Handling
//
// Every error carries a go-errors code; use ErrorCode or IsCode to branch:
//
//	if copilot.IsCode(err, copilot.ErrCodeMappingNotFound) {
//		// nothing to delete
//	}
//
// Repository: https://github.com/agilira/copilot
package copilot
