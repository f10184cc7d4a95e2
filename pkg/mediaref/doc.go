// Package mediaref provides a reusable reference-integrity and soft-delete
// lifecycle engine for content items (events, blog posts) that reference
// shared media assets through hero-image, gallery, and video fields.
//
// It exposes a single Service interface that orchestrates content
// create/update/soft-delete/restore, keeps every asset's usage set an exact
// mirror of the live references pointing at it, guards media deletion while
// references remain, and produces collision-free slugs. Implementations of
// repositories (memory, Postgres) and blob stores (memory, filesystem, S3)
// are provided under subpackages.
//
// Reference Tracking
//
// Every content mutation flows through a delta computation: the difference
// between the item's old and new reference maps drives idempotent
// usage-add/usage-remove calls against the media repository. The default
// mode applies the delta best-effort and reports partial failures
// itemized for retry; WithTransactionalRefs makes it all-or-nothing.
package mediaref
