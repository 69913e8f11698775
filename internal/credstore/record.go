package credstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// rc file keys. "mysite" and "token" match the format written by the original
// StoredSafe client tooling; the remaining keys are extensions that older
// readers skip over.
const (
	keyServer     = "mysite"
	keyToken      = "token"
	keyIssued     = "issued"
	keyExpires    = "expires"
	keyCABundle   = "cabundle"
	keySkipVerify = "skipverify"
)

// absentToken is the placeholder the original client writes on logout.
const absentToken = "none"

// Record is the persisted credential tuple for one StoredSafe server.
// IssuedAt and ExpiresAt are zero when the server did not report an expiry;
// liveness must then be established remotely.
type Record struct {
	Server     string
	Token      string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	CABundle   string
	SkipVerify bool

	// Extra holds comment lines and unrecognized keys found while parsing,
	// in order. They are written back on marshal so a hand-edited rc file
	// survives a token rewrite intact.
	Extra []string
}

// Absent reports whether the record is equivalent to "no credential":
// either no token at all or the explicit "none" placeholder.
func (r Record) Absent() bool {
	return r.Token == "" || r.Token == absentToken
}

// Expired reports whether the record's expiry, if known, lies within skew
// of now. Records without a known expiry never report expired.
func (r Record) Expired(now time.Time, skew time.Duration) bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(r.ExpiresAt)
}

// ParseRecord decodes the rc-file text format: one "key:value" pair per line.
// Comment lines and unknown keys are carried through on Extra so the format
// can grow, and hand-edited files survive rewrites. A missing or "none" token
// yields an absent record, not an error.
func ParseRecord(data []byte) (Record, error) {
	var rec Record
	for lineno, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			rec.Extra = append(rec.Extra, line)
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return Record{}, fmt.Errorf("line %d: missing ':' separator", lineno+1)
		}
		value = strings.TrimSpace(value)
		switch key {
		case keyServer:
			if value != absentToken {
				rec.Server = value
			}
		case keyToken:
			rec.Token = value
		case keyIssued:
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return Record{}, fmt.Errorf("line %d: invalid %s timestamp: %w", lineno+1, keyIssued, err)
			}
			rec.IssuedAt = t
		case keyExpires:
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return Record{}, fmt.Errorf("line %d: invalid %s timestamp: %w", lineno+1, keyExpires, err)
			}
			rec.ExpiresAt = t
		case keyCABundle:
			rec.CABundle = value
		case keySkipVerify:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return Record{}, fmt.Errorf("line %d: invalid %s value: %w", lineno+1, keySkipVerify, err)
			}
			rec.SkipVerify = b
		default:
			rec.Extra = append(rec.Extra, line)
		}
	}
	if rec.Token == absentToken {
		rec.Token = ""
	}
	return rec, nil
}

// MarshalRecord encodes a record in the rc-file text format. The output stays
// editor-friendly: plain text, one key per line, trailing newline. Extra lines
// from a parsed file are appended after the known keys.
func MarshalRecord(rec Record) []byte {
	var sb strings.Builder
	writeLine := func(key, value string) {
		sb.WriteString(key)
		sb.WriteString(":")
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	writeLine(keyServer, rec.Server)
	if rec.Token == "" {
		writeLine(keyToken, absentToken)
	} else {
		writeLine(keyToken, rec.Token)
	}
	if !rec.IssuedAt.IsZero() {
		writeLine(keyIssued, rec.IssuedAt.UTC().Format(time.RFC3339))
	}
	if !rec.ExpiresAt.IsZero() {
		writeLine(keyExpires, rec.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if rec.CABundle != "" {
		writeLine(keyCABundle, rec.CABundle)
	}
	if rec.SkipVerify {
		writeLine(keySkipVerify, "true")
	}
	for _, line := range rec.Extra {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}
