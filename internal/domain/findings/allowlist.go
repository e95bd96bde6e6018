package findings

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	regexp "github.com/wasilibs/go-re2"
)

// AllowlistKind discriminates the suppression mechanisms an entry can use.
type AllowlistKind string

const (
	// AllowlistKindPath suppresses by file path, either a path fragment or
	// an anchored regular expression.
	AllowlistKindPath AllowlistKind = "path"

	// AllowlistKindRegex suppresses by a regular expression over the
	// matched text.
	AllowlistKindRegex AllowlistKind = "regex"

	// AllowlistKindStopword suppresses when the matched text contains the
	// entry value as a case-insensitive substring.
	AllowlistKindStopword AllowlistKind = "stopword"

	// AllowlistKindFingerprint suppresses an exact fingerprint, typically
	// created by marking a finding as a false positive.
	AllowlistKindFingerprint AllowlistKind = "fingerprint"
)

func (k AllowlistKind) String() string { return string(k) }

// ParseAllowlistKind converts a string to an AllowlistKind.
func ParseAllowlistKind(s string) AllowlistKind {
	switch s {
	case "path":
		return AllowlistKindPath
	case "regex":
		return AllowlistKindRegex
	case "stopword":
		return AllowlistKindStopword
	case "fingerprint":
		return AllowlistKindFingerprint
	default:
		return ""
	}
}

// AllowlistScope controls which repositories an entry applies to.
type AllowlistScope string

const (
	ScopeRepository AllowlistScope = "repository"
	ScopeGlobal     AllowlistScope = "global"
)

func (s AllowlistScope) String() string { return string(s) }

// AllowlistEntry is a suppression rule. Entries are never deleted, only
// deactivated, so suppression history stays auditable.
type AllowlistEntry struct {
	id           uuid.UUID
	repositoryID *uuid.UUID
	kind         AllowlistKind
	scope        AllowlistScope
	pattern      string
	reason       string
	active       bool
	createdAt    time.Time

	// Usage counters are advisory telemetry. Increments are atomic but a
	// lost update across processes is tolerated.
	timesMatched  atomic.Int64
	lastMatchedAt atomic.Int64
}

// NewAllowlistEntry creates an active entry. repositoryID must be nil for
// global scope.
func NewAllowlistEntry(kind AllowlistKind, scope AllowlistScope, repositoryID *uuid.UUID, pattern, reason string, now time.Time) *AllowlistEntry {
	return &AllowlistEntry{
		id:           uuid.New(),
		repositoryID: repositoryID,
		kind:         kind,
		scope:        scope,
		pattern:      pattern,
		reason:       reason,
		active:       true,
		createdAt:    now,
	}
}

// ReconstructAllowlistEntry creates an entry from stored fields. This should
// only be used by repositories when loading from the DB.
func ReconstructAllowlistEntry(
	id uuid.UUID,
	repositoryID *uuid.UUID,
	kind AllowlistKind,
	scope AllowlistScope,
	pattern, reason string,
	active bool,
	timesMatched int64,
	lastMatchedAt *time.Time,
	createdAt time.Time,
) *AllowlistEntry {
	e := &AllowlistEntry{
		id:           id,
		repositoryID: repositoryID,
		kind:         kind,
		scope:        scope,
		pattern:      pattern,
		reason:       reason,
		active:       active,
		createdAt:    createdAt,
	}
	e.timesMatched.Store(timesMatched)
	if lastMatchedAt != nil {
		e.lastMatchedAt.Store(lastMatchedAt.UnixNano())
	}
	return e
}

func (e *AllowlistEntry) ID() uuid.UUID            { return e.id }
func (e *AllowlistEntry) RepositoryID() *uuid.UUID { return e.repositoryID }
func (e *AllowlistEntry) Kind() AllowlistKind      { return e.kind }
func (e *AllowlistEntry) Scope() AllowlistScope    { return e.scope }
func (e *AllowlistEntry) Pattern() string          { return e.pattern }
func (e *AllowlistEntry) Reason() string           { return e.reason }
func (e *AllowlistEntry) Active() bool             { return e.active }
func (e *AllowlistEntry) CreatedAt() time.Time     { return e.createdAt }
func (e *AllowlistEntry) TimesMatched() int64      { return e.timesMatched.Load() }

// LastMatchedAt returns when the entry last suppressed a match.
func (e *AllowlistEntry) LastMatchedAt() (time.Time, bool) {
	nanos := e.lastMatchedAt.Load()
	if nanos == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

// RecordMatch credits the entry for one suppression.
func (e *AllowlistEntry) RecordMatch(now time.Time) {
	e.timesMatched.Add(1)
	e.lastMatchedAt.Store(now.UnixNano())
}

// Deactivate turns the entry off without deleting it.
func (e *AllowlistEntry) Deactivate() { e.active = false }

// Verdict is the outcome of evaluating one match against the allowlist.
// Every matching entry is listed so usage counters can all be credited.
type Verdict struct {
	Suppressed bool
	Matched    []*AllowlistEntry
}

type compiledEntry struct {
	entry *AllowlistEntry
	re    *regexp.Regexp // nil for fragment and stopword matching
}

// Allowlist is the effective, compiled suppression set for one scan:
// repository-scoped entries plus global entries, active only. Layering cheap
// path checks before content checks before fingerprint checks bounds cost on
// large scans.
type Allowlist struct {
	paths        []compiledEntry
	regexes      []compiledEntry
	stopwords    []*AllowlistEntry
	fingerprints map[Fingerprint][]*AllowlistEntry
	configErrs   []error
}

// NewAllowlist compiles entries into an evaluator. Malformed patterns are
// collected as AllowlistConfigError values and their entries skipped; a bad
// entry never suppresses and never fails the scan.
func NewAllowlist(entries []*AllowlistEntry) *Allowlist {
	al := &Allowlist{fingerprints: make(map[Fingerprint][]*AllowlistEntry)}

	for _, e := range entries {
		if !e.Active() {
			continue
		}

		switch e.Kind() {
		case AllowlistKindPath:
			// Anchored patterns are treated as regular expressions, anything
			// else as a literal path fragment.
			if strings.HasPrefix(e.Pattern(), "^") {
				re, err := regexp.Compile(e.Pattern())
				if err != nil {
					al.configErrs = append(al.configErrs, &AllowlistConfigError{
						EntryID: e.ID().String(), Pattern: e.Pattern(), Err: err,
					})
					continue
				}
				al.paths = append(al.paths, compiledEntry{entry: e, re: re})
				continue
			}
			al.paths = append(al.paths, compiledEntry{entry: e})

		case AllowlistKindRegex:
			re, err := regexp.Compile(e.Pattern())
			if err != nil {
				al.configErrs = append(al.configErrs, &AllowlistConfigError{
					EntryID: e.ID().String(), Pattern: e.Pattern(), Err: err,
				})
				continue
			}
			al.regexes = append(al.regexes, compiledEntry{entry: e, re: re})

		case AllowlistKindStopword:
			al.stopwords = append(al.stopwords, e)

		case AllowlistKindFingerprint:
			fp := Fingerprint(e.Pattern())
			al.fingerprints[fp] = append(al.fingerprints[fp], e)
		}
	}

	return al
}

// ConfigErrors returns the entries that failed to compile.
func (a *Allowlist) ConfigErrors() []error { return a.configErrs }

// Evaluate checks a raw match against every layer. All matching entries are
// returned; suppression is the logical OR across layers.
func (a *Allowlist) Evaluate(m RawMatch, fp Fingerprint) Verdict {
	var matched []*AllowlistEntry

	for _, ce := range a.paths {
		if ce.re != nil {
			if ce.re.MatchString(m.FilePath) {
				matched = append(matched, ce.entry)
			}
			continue
		}
		if strings.Contains(m.FilePath, ce.entry.Pattern()) {
			matched = append(matched, ce.entry)
		}
	}

	for _, ce := range a.regexes {
		if ce.re.MatchString(m.Secret) {
			matched = append(matched, ce.entry)
		}
	}

	lowered := strings.ToLower(m.Secret)
	for _, e := range a.stopwords {
		if strings.Contains(lowered, strings.ToLower(e.Pattern())) {
			matched = append(matched, e)
		}
	}

	matched = append(matched, a.fingerprints[fp]...)

	return Verdict{Suppressed: len(matched) > 0, Matched: matched}
}
