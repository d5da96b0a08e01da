// Package domain models public swimming-pool facilities and their free-swim
// schedule records.
//
// # Data Source
//
// Facility detail pages are unstructured Korean web sources: municipal pool
// sites, Naver blogs and cafes, Kakao channels, Instagram pages. A scraper
// strips each page down to visible text (plus OCR text for image-heavy
// sources), and an LLM extraction client turns that text into JSON schedule
// rows. This package owns the shapes on both sides of that boundary and the
// parsing rules between them.
//
// # Day-of-week Domain
//
// Days use the fixed Sunday-first Korean single-character domain:
//
//	일 월 화 수 목 금 토
//
// The index of a day in [Days] matches time.Weekday, so Sunday is 0. Records
// carrying any other day string are rejected during validation.
//
// # Time Range Format
//
// Schedule rows carry a same-day wall-clock window as "HH:MM-HH:MM". The
// textual form is preserved verbatim for display; [ParseTimeRange] converts
// it to minutes-since-midnight for comparisons. Whitespace around the dash
// is tolerated because LLM output is not byte-stable.
//
// # Fees
//
// adult_fee, teen_fee and child_fee are single-visit prices in KRW. Any
// subset may be absent. The extraction prompt already excludes membership
// and package pricing (heuristic ceiling ~20,000 KRW), so the parser does
// not re-validate magnitude.
//
// # Pool Codes
//
// A facility's pool_code is its natural key, used for idempotent upserts and
// as the denormalized join key on schedule records. Codes discovered
// upstream are kept as-is; facilities ingested without one get a generated
// code: "s" + ingestion date stamp + a short random suffix. See
// [NewPoolCode].
package domain
