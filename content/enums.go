package content

// Per chapter anomaly, never aborts the import. unsupported-part: embedded
// part was skipped or replaced with a placeholder. low-content: word count
// is below the low content threshold.
// ENUM(unsupported-part, low-content)
type WarningKind int

// Pipeline failure classes, zero value means "not an import error".
//   - corrupt-archive: input is not a readable zip or violates archive
//     safety limits
//   - missing-manifest: EPUB has no package document or spine, DOCX has no
//     main document part
//   - unsupported-part: unhandled content, reported as warning during
//     decoding
//   - empty-input: nothing to import
//   - persist-conflict: chapter number collision at commit time
//   - persist-unavailable: persistence failed for infrastructural reasons
//
// ENUM(corrupt-archive=1, missing-manifest, unsupported-part, empty-input, persist-conflict, persist-unavailable)
type ErrorKind int
