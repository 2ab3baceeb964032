/*
Package lifecycle is the coordinator at the center of baseoverlay-csi: it
decides, for every volume publish, whether a valid base exists to overlay
against, and owns the one lock that makes promotion, reaping, and mounting
mutually exclusive.

	┌────────────────────── Coordinator ───────────────────────┐
	│                                                            │
	│   Mount(volume)                     Unmount(volume)       │
	│     │                                  │                  │
	│     ▼                                  ▼                  │
	│   provision scratch pod (no lock)    (no lock before)     │
	│     │                                  │                  │
	│     ▼                                  ▼                  │
	│  ┌────────────────── mu sync.Mutex ──────────────────┐    │
	│  │  find valid base?                                  │    │
	│  │    yes → overlay mount, registry.Associate         │    │
	│  │    no  → bind mount scratch dir                    │    │
	│  │                                                     │    │
	│  │  on unmount with no overlay users and no valid      │    │
	│  │  base: promote the scratch dir into a new base      │    │
	│  │  (rename + marker write, both under this lock)      │    │
	│  └─────────────────────────────────────────────────────┘    │
	│                                                            │
	│   Reap() — background ticker, same lock, deletes          │
	│   expired bases with zero associated volumes              │
	└────────────────────────────────────────────────────────────┘

The registry and base store never lock themselves; every exported method on
the Coordinator holds mu for as long as it touches either one.
*/
package lifecycle
