// Package coordinate implements STAMP coordinates and the resolution of the
// latest visible version of a chronology.
//
// A Coordinate combines a set of allowed statuses, a position (time and path),
// module include and exclude lists and a module priority list. Coordinates are
// immutable values; the With* methods return modified copies.
//
// Resolution (Resolver.Latest) applies, in this order:
//  1. drop versions whose stamp is canceled
//  2. drop versions whose status is not allowed
//  3. drop versions of excluded modules, or of modules missing from a non-empty include list
//  4. drop versions on paths not reachable from the position path
//  5. drop versions later than the visible time of their path
//  6. keep the versions with the latest time
//  7. break ties with the module priority list; an unresolved tie is an *AmbiguityError
//
// Reachability follows the origin DAG of the PathGraph. The position path is
// visible up to the position time, an origin path only up to the time of the
// origin, so changes made on an origin path after the branch stay invisible.
//
// Stamp values are taken from a StampSource, the stamp records being
// authoritative over the status, module and path copied into each version.
package coordinate
