// Package entity defines the components stored by tks and their binary record format.
//
// Every component is identified by a nid (a dense int32) and stored as one record
// holding its complete history, the chronology. The record format is big-endian
// and bit-exact:
//
//	[arrayCount:int32] then arrayCount times [length:int32][bytes]
//
// Array 0 is the header, the remaining arrays are versions:
//
//	header:          [token:u8][nid:i32][msb:i64][lsb:i64][extraUuidCount:i32]{[msb][lsb]}...
//	                 [patternNid:i32][referencedNid:i32]   (semantic chronologies only)
//	                 [versionCount:i32]
//	version:         [token:u8][stampNid:i32][status:u8][author:i32][module:i32][path:i32] payload
//	stamp version:   [token:u8][status:u8][time:i64][author:i32][module:i32][path:i32]
//
// Payloads:
//   - concept: empty
//   - pattern: [meaning:i32][purpose:i32][fieldCount:i32]{[meaning][purpose][dataType][index]}
//   - semantic: [fieldCount:i32]{[fieldType:u8][value]}
//
// The first byte of every array is a FormatToken. The token set is closed; a
// record containing any other token is rejected with ErrUnknownFormat. Size or
// count inconsistencies are reported as ErrMalformedRecord.
//
// The package offers two views on a record:
//   - Record: the framed arrays, used by the merge engine which works on raw bytes
//   - Chronology: the fully decoded Header and Versions, used by readers
//
// Stamps are components as well. A stamp chronology carries the stamp values in
// its version arrays; Chronology.CurrentStamp picks the effective one.
package entity
