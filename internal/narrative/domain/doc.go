// Package domain defines the canonical world state, the event log entry
// shape, and the patch overlay that connects them.
//
// A CanonicalState is the single source of truth for one story: who is
// alive, where they are, who owns what, which quests are active, and what
// must never change. Every accepted turn replaces it wholesale with the
// result of folding a StatePatch over the previous value; nothing here
// mutates a CanonicalState in place except through Apply.
package domain
