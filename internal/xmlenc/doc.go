// Package xmlenc is the EBICS/ISO 20022 XML codec: a namespace-insensitive
// DOM-like tree with destructuring combinators (RequireRoot,
// RequireUniqueChild, MaybeUniqueChild, MapEachChild), plus exclusive XML
// canonicalization (C14N) used to produce and verify EBICS AuthSignature
// elements.
//
// No available reference implementation performs XML canonicalization or
// XML-dsig; the only prior XML consumer (the currency client) unmarshals a
// fixed schema directly with encoding/xml. This package is therefore built
// on encoding/xml's tokenizer rather than a third-party library — see
// DESIGN.md for the justification.
package xmlenc
