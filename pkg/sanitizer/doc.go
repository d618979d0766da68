// Package sanitizer normalizes user supplied parking data before validation
// and storage.
//
// All functions are idempotent and never fail: invalid input collapses to an
// empty string, which validation then rejects.
//
// Normalization includes:
//   - Strings: collapse whitespace, trim leading/trailing spaces
//   - Vehicle numbers: upper-case, drop spaces, dots and hyphens - "ka 01-ab 1234" becomes "KA01AB1234"
//   - Slot IDs: upper-case section letter, zero padded number - "a-1" becomes "A-01"
//   - Emails: trimmed and lower-cased
package sanitizer
